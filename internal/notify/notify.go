package notify

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/devrup/organics-api/internal/logging"
	"github.com/devrup/organics-api/internal/models"
	"github.com/devrup/organics-api/internal/mykafka"
)

const eventsTopic = "order_events"

// Dispatcher fans order lifecycle events out to in-app notifications, the
// event stream and email. Every path is fire-and-forget: a failure is logged
// and never rolls back the business state that triggered it.
type Dispatcher struct {
	DB         *gorm.DB
	Producer   *mykafka.Producer
	Mailer     *Mailer
	AdminEmail string
}

func (d *Dispatcher) notify(ctx context.Context, userID, title, message string) {
	n := models.Notification{UserID: userID, Title: title, Message: message}
	if err := d.DB.WithContext(ctx).Create(&n).Error; err != nil {
		logging.FromContext(ctx).Error("notification create failed", "user_id", userID, "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, key string, event map[string]any) {
	if d.Producer == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Producer.PublishEvent(pubCtx, eventsTopic, key, event); err != nil {
		logging.FromContext(ctx).Error("event publish failed", "error", err)
	}
}

func (d *Dispatcher) userEmail(ctx context.Context, userID string) (*models.User, bool) {
	var u models.User
	if err := d.DB.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		logging.FromContext(ctx).Warn("user lookup for email failed", "user_id", userID, "error", err)
		return nil, false
	}
	return &u, true
}

func (d *Dispatcher) mail(ctx context.Context, to, subject, tmpl string, data any) {
	if d.Mailer == nil || to == "" {
		return
	}
	if err := d.Mailer.Send(to, subject, tmpl, data); err != nil {
		logging.FromContext(ctx).Error("email send failed", "to", to, "subject", subject, "error", err)
	}
}

func paymentMethodLabel(method string) string {
	if method == models.PaymentMethodCOD {
		return "Cash on Delivery"
	}
	return "Online Payment"
}

func (d *Dispatcher) confirmationEmails(ctx context.Context, order *models.Order, heading, intro string) {
	data := map[string]any{
		"Heading":       heading,
		"Intro":         intro,
		"OrderID":       order.ID,
		"Subtotal":      order.TotalPrice + order.DiscountAmount,
		"Discount":      order.DiscountAmount,
		"Total":         order.TotalPrice,
		"PaymentMethod": paymentMethodLabel(order.PaymentMethod),
	}

	if u, ok := d.userEmail(ctx, order.UserID); ok {
		data["Name"] = u.FirstName
		d.mail(ctx, u.Email, fmt.Sprintf("%s - Order #%s", heading, order.ID), orderConfirmationTmpl, data)
	}
	if d.AdminEmail != "" {
		data["Name"] = "Admin"
		d.mail(ctx, d.AdminEmail, fmt.Sprintf("New Order - #%s", order.ID), orderConfirmationTmpl, data)
	}
}

// OrderPlaced follows a successful COD materialization.
func (d *Dispatcher) OrderPlaced(ctx context.Context, order *models.Order) {
	d.notify(ctx, order.UserID, "Order Placed Successfully",
		fmt.Sprintf("Your order #%s has been placed successfully.", order.ID))
	d.publish(ctx, order.ID, map[string]any{
		"type": "order_placed", "order_id": order.ID, "user_id": order.UserID,
		"total": order.TotalPrice, "payment_method": order.PaymentMethod,
	})
	d.confirmationEmails(ctx, order, "Order Confirmation",
		fmt.Sprintf("Your order #%s has been confirmed.", order.ID))
}

func (d *Dispatcher) PaymentSucceeded(ctx context.Context, order *models.Order) {
	d.notify(ctx, order.UserID, "Payment Successful",
		fmt.Sprintf("Your payment for order #%s was successful.", order.ID))
	d.publish(ctx, order.ID, map[string]any{
		"type": "payment_succeeded", "order_id": order.ID, "user_id": order.UserID,
		"total": order.TotalPrice,
	})
	d.confirmationEmails(ctx, order, "Payment Confirmed",
		fmt.Sprintf("Your payment for order #%s has been successfully processed.", order.ID))
}

func (d *Dispatcher) PaymentFailed(ctx context.Context, order *models.Order) {
	d.notify(ctx, order.UserID, "Payment Failed",
		fmt.Sprintf("Your payment for order #%s failed. Please try again.", order.ID))
	d.publish(ctx, order.ID, map[string]any{
		"type": "payment_failed", "order_id": order.ID, "user_id": order.UserID,
	})
}

// OrderStatusChanged follows an admin lifecycle transition.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, order *models.Order, oldStatus string) {
	var message string
	if order.Status == models.OrderStatusShipped {
		message = fmt.Sprintf("Your order #%s has been shipped! Tracking number: %s.",
			order.ID, order.TrackingNumber)
		if order.TrackingURL != "" {
			message += " Track your order at: " + order.TrackingURL
		}
		d.notify(ctx, order.UserID, "Order Shipped", message)
	} else {
		message = fmt.Sprintf("Your order #%s status has been updated to %s.", order.ID, order.Status)
		d.notify(ctx, order.UserID, "Order Status Updated", message)
	}

	d.publish(ctx, order.ID, map[string]any{
		"type": "order_status_changed", "order_id": order.ID, "user_id": order.UserID,
		"old_status": oldStatus, "new_status": order.Status,
	})

	if u, ok := d.userEmail(ctx, order.UserID); ok {
		d.mail(ctx, u.Email, fmt.Sprintf("Order Status Update - Order #%s", order.ID), statusUpdateTmpl, map[string]any{
			"Name":           u.FirstName,
			"OrderID":        order.ID,
			"OldStatus":      oldStatus,
			"NewStatus":      order.Status,
			"TrackingNumber": order.TrackingNumber,
			"TrackingURL":    order.TrackingURL,
		})
	}
}
