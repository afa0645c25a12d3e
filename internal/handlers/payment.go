package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/devrup/organics-api/internal/logging"
	"github.com/devrup/organics-api/internal/payment"
)

type PaymentHandler struct {
	Reconciler *payment.Reconciler
	Gateway    payment.Gateway
	JWTSecret  []byte
}

// Webhook handles the gateway's server-to-server callback. Delivery is
// at-least-once and unauthenticated-looking; the signature header is the only
// thing that makes it trustworthy, and an invalid one is rejected outright.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.webhook")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read body")
	}

	payload, err := h.Gateway.VerifyWebhook(c.Request().Header.Get("Authorization"), body)
	if err != nil {
		l.Warn("webhook rejected", "remote_ip", c.RealIP(), "error", err)
		if errors.Is(err, payment.ErrInvalidSignature) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid signature")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid webhook data")
	}

	res, err := h.Reconciler.Reconcile(ctx, payment.Trigger{
		MerchantOrderID: payload.MerchantOrderID,
		ClaimedState:    payload.State,
		GatewayTxnID:    payload.TransactionID,
		RawPayload:      payload.Raw,
	})
	if err != nil {
		if errors.Is(err, payment.ErrTxnNotFound) {
			l.Error("webhook for unknown transaction", "merchant_order_id", payload.MerchantOrderID)
			return echo.NewHTTPError(http.StatusNotFound, "Transaction not found")
		}
		l.Error("webhook processing failed", "merchant_order_id", payload.MerchantOrderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Webhook processing failed")
	}

	if res.AlreadyFinal {
		return c.JSON(http.StatusOK, map[string]any{"status": "already_processed"})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "processed"})
}

type statusPollRequest struct {
	MerchantOrderID string `json:"merchant_order_id"`
}

// Status is the client-initiated backup channel: after the gateway redirect
// the buyer's client asks us to re-check the payment outcome.
func (h *PaymentHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.status")

	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req statusPollRequest
	if err := c.Bind(&req); err != nil || req.MerchantOrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "merchant_order_id is required")
	}

	res, err := h.Reconciler.Reconcile(ctx, payment.Trigger{
		MerchantOrderID: req.MerchantOrderID,
		OwnerID:         userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrTxnNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Transaction not found")
		case errors.Is(err, payment.ErrForbidden):
			l.Warn("status poll for foreign transaction", "user_id", userID,
				"merchant_order_id", req.MerchantOrderID)
			return echo.NewHTTPError(http.StatusForbidden, "Unauthorized")
		case errors.Is(err, payment.ErrGatewayUnavailable):
			return echo.NewHTTPError(http.StatusBadGateway, "Failed to check payment status")
		default:
			l.Error("status poll failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Status check failed")
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"status":       res.TxnStatus,
		"order_status": res.OrderStatus,
		"order_id":     res.OrderID,
		"message":      res.Message(),
	})
}
