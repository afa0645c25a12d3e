package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/devrup/organics-api/internal/logging"
	"github.com/devrup/organics-api/internal/models"
	"github.com/devrup/organics-api/internal/notify"
	"github.com/devrup/organics-api/internal/util"
)

type OrderHandler struct {
	DB        *gorm.DB
	Notifier  *notify.Dispatcher
	JWTSecret []byte
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	userID, role, err := GetIDAndRole(c, h.JWTSecret)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Paginate(page, size)

	ctx := c.Request().Context()
	scope := func(q *gorm.DB) *gorm.DB {
		if role != "admin" {
			q = q.Where("user_id = ?", userID)
		}
		return q
	}

	var total int64
	if err := scope(h.DB.WithContext(ctx).Model(&models.Order{})).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to fetch orders")
	}

	var orders []models.Order
	if err := scope(h.DB.WithContext(ctx)).
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to fetch orders")
	}
	return c.JSON(http.StatusOK, map[string]any{"orders": orders, "total": total})
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	userID, role, err := GetIDAndRole(c, h.JWTSecret)
	if err != nil {
		return err
	}

	q := h.DB.WithContext(c.Request().Context()).
		Preload("Items").
		Where("id = ?", c.Param("id"))
	if role != "admin" {
		q = q.Where("user_id = ?", userID)
	}

	var order models.Order
	err = q.First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Order not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to fetch order")
	}
	return c.JSON(http.StatusOK, map[string]any{"order": order})
}

var validStatuses = map[string]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
	models.OrderStatusCancelled:  true,
}

type updateStatusRequest struct {
	Status               string `json:"status"`
	DeliveryPartner      string `json:"delivery_partner"`
	TrackingNumber       string `json:"tracking_number"`
	TrackingURL          string `json:"tracking_url"`
	ExpectedDeliveryDate string `json:"expected_delivery_date"`
}

// UpdateStatus advances the order lifecycle. Shipping requires delivery
// details; delivered stamps the actual delivery time once.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	if _, err := GetAdminID(c, h.JWTSecret); err != nil {
		return err
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Status is required")
	}
	if !validStatuses[req.Status] {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error": "Invalid status",
			"valid_statuses": []string{
				models.OrderStatusPending, models.OrderStatusProcessing,
				models.OrderStatusShipped, models.OrderStatusDelivered,
				models.OrderStatusCancelled,
			},
		})
	}

	var order models.Order
	err := h.DB.WithContext(ctx).First(&order, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Order not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to fetch order")
	}

	oldStatus := order.Status

	if req.Status == models.OrderStatusShipped {
		fieldErrors, expected := validateShippingDetails(&req)
		if len(fieldErrors) > 0 {
			return c.JSON(http.StatusBadRequest, map[string]any{
				"error":           "Validation failed",
				"details":         fieldErrors,
				"required_fields": []string{"delivery_partner", "tracking_number", "expected_delivery_date"},
			})
		}
		order.DeliveryPartner = strings.TrimSpace(req.DeliveryPartner)
		order.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
		order.TrackingURL = strings.TrimSpace(req.TrackingURL)
		order.ExpectedDeliveryDate = expected
	}

	order.Status = req.Status
	if req.Status == models.OrderStatusDelivered && order.ActualDeliveryDate == nil {
		now := time.Now().UTC()
		order.ActualDeliveryDate = &now
	}

	if err := h.DB.WithContext(ctx).Save(&order).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update order status")
	}

	h.Notifier.OrderStatusChanged(ctx, &order, oldStatus)

	l.Info("order_status_updated", "order_id", order.ID, "old_status", oldStatus, "new_status", order.Status)
	return c.JSON(http.StatusOK, map[string]any{"order": order})
}

func validateShippingDetails(req *updateStatusRequest) (map[string]string, *time.Time) {
	fieldErrors := map[string]string{}

	if strings.TrimSpace(req.DeliveryPartner) == "" {
		fieldErrors["delivery_partner"] = "Delivery partner is required when marking order as shipped"
	}
	if strings.TrimSpace(req.TrackingNumber) == "" {
		fieldErrors["tracking_number"] = "Tracking number is required when marking order as shipped"
	}

	var expected *time.Time
	if req.ExpectedDeliveryDate == "" {
		fieldErrors["expected_delivery_date"] = "Expected delivery date is required when marking order as shipped"
	} else {
		d, err := time.Parse("2006-01-02", req.ExpectedDeliveryDate)
		if err != nil {
			fieldErrors["expected_delivery_date"] = "Invalid date format. Please use YYYY-MM-DD format"
		} else {
			today := time.Now().UTC().Truncate(24 * time.Hour)
			if d.Before(today) {
				fieldErrors["expected_delivery_date"] = "Expected delivery date cannot be in the past"
			} else {
				expected = &d
			}
		}
	}

	if url := strings.TrimSpace(req.TrackingURL); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			fieldErrors["tracking_url"] = "Tracking URL must be a valid URL starting with http:// or https://"
		}
	}

	return fieldErrors, expected
}
