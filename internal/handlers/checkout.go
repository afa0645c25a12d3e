package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/devrup/organics-api/internal/checkout"
	"github.com/devrup/organics-api/internal/coupon"
	"github.com/devrup/organics-api/internal/logging"
	"github.com/devrup/organics-api/internal/models"
	"github.com/devrup/organics-api/internal/notify"
	"github.com/devrup/organics-api/internal/payment"
)

type CheckoutHandler struct {
	Svc       *checkout.Service
	Notifier  *notify.Dispatcher
	JWTSecret []byte
}

type codCheckoutRequest struct {
	AddressID       uint    `json:"address_id"`
	CouponID        *uint   `json:"coupon_id"`
	DiscountValue   float64 `json:"discount_value"`
	ProductDiscount float64 `json:"product_discount"`
}

type onlineCheckoutRequest struct {
	AddressID     uint    `json:"address_id"`
	CouponID      *uint   `json:"coupon_id"`
	DiscountValue float64 `json:"discount_value"`
}

func checkoutHTTPError(err error) error {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		return echo.NewHTTPError(http.StatusBadRequest, "Cart is empty")
	case errors.Is(err, checkout.ErrAddressNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, "Address not found")
	case errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrNotActive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrMinPurchase),
		errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, coupon.ErrUsageLimit),
		errors.Is(err, coupon.ErrDiscountMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, "Payment initiation failed. Please try again.")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Order creation failed. Please try again.")
	}
}

func (h *CheckoutHandler) CODCheckout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.cod")

	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req codCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	placed, err := h.Svc.Materialize(ctx, checkout.Input{
		UserID:                 userID,
		AddressID:              req.AddressID,
		CouponID:               req.CouponID,
		ClaimedCouponDiscount:  req.DiscountValue,
		ClaimedProductDiscount: req.ProductDiscount,
		CheckProductDiscount:   true,
	}, models.PaymentMethodCOD)
	if err != nil {
		l.Warn("cod_checkout_error", "error", err)
		return checkoutHTTPError(err)
	}

	h.Notifier.OrderPlaced(ctx, &placed.Order)

	l.Info("cod_checkout_success", "order_id", placed.Order.ID)
	return c.JSON(http.StatusCreated, map[string]any{
		"order": placed.Order,
		"price_breakdown": map[string]any{
			"subtotal":         placed.Breakdown.Subtotal,
			"product_discount": placed.Breakdown.ProductDiscount,
			"coupon_discount":  placed.Breakdown.CouponDiscount,
			"total_discount":   placed.Breakdown.TotalDiscount,
			"final_price":      placed.Breakdown.FinalPrice,
		},
	})
}

func (h *CheckoutHandler) OnlineCheckout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.online")

	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req onlineCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	initiation, err := h.Svc.InitiateOnline(ctx, checkout.Input{
		UserID:                userID,
		AddressID:             req.AddressID,
		CouponID:              req.CouponID,
		ClaimedCouponDiscount: req.DiscountValue,
	})
	if err != nil {
		l.Warn("online_checkout_error", "error", err)
		return checkoutHTTPError(err)
	}

	l.Info("online_checkout_success", "order_id", initiation.OrderID)
	return c.JSON(http.StatusCreated, map[string]any{
		"success":           true,
		"payment_url":       initiation.PaymentURL,
		"order_id":          initiation.OrderID,
		"merchant_order_id": initiation.MerchantOrderID,
	})
}
