package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devrup/organics-api/internal/coupon"
	"github.com/devrup/organics-api/internal/pricing"
)

type CouponHandler struct {
	Validator *coupon.Validator
	JWTSecret []byte
}

type validateCouponRequest struct {
	Coupon    string  `json:"coupon"`
	CartTotal float64 `json:"cart_total"`
}

// ValidateCoupon lets the client preview a coupon's discount before checkout.
// The figures it returns are re-derived server-side at materialization; this
// endpoint grants nothing.
func (h *CouponHandler) ValidateCoupon(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req validateCouponRequest
	if err := c.Bind(&req); err != nil || req.Coupon == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "coupon code is required")
	}

	cpn, err := h.Validator.Lookup(ctx, req.Coupon)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid coupon code.")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "coupon lookup failed")
	}

	if err := h.Validator.Validate(ctx, cpn, userID, req.CartTotal, time.Now()); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	discount := pricing.CouponDiscount(cpn, req.CartTotal)
	return c.JSON(http.StatusOK, map[string]any{
		"valid":       true,
		"coupon":      cpn,
		"discount":    discount,
		"final_total": pricing.Round(req.CartTotal - discount),
	})
}
