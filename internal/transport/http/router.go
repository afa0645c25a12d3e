package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/devrup/organics-api/internal/handlers"
)

type Deps struct {
	CartHandler     *handlers.CartHandler
	CouponHandler   *handlers.CouponHandler
	CheckoutHandler *handlers.CheckoutHandler
	PaymentHandler  *handlers.PaymentHandler
	OrderHandler    *handlers.OrderHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	api := e.Group("/api")

	cart := api.Group("/cart")
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.DELETE("/:id", d.CartHandler.DeleteFromCart)

	api.POST("/coupons/validate", d.CouponHandler.ValidateCoupon)

	checkout := api.Group("/checkout")
	checkout.POST("/cod", d.CheckoutHandler.CODCheckout)
	checkout.POST("/online", d.CheckoutHandler.OnlineCheckout)

	payments := api.Group("/payments")
	payments.POST("/webhook", d.PaymentHandler.Webhook)
	payments.POST("/status", d.PaymentHandler.Status)

	orders := api.Group("/orders")
	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.POST("/:id/status", d.OrderHandler.UpdateStatus)
}
