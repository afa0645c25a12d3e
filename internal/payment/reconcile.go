package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/devrup/organics-api/internal/logging"
	"github.com/devrup/organics-api/internal/models"
)

var (
	ErrTxnNotFound = errors.New("transaction not found")
	ErrForbidden   = errors.New("transaction does not belong to this user")
)

// Notifier receives post-commit side effects. Implementations must be
// best-effort: failures are logged by the caller, never propagated.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, order *models.Order)
	PaymentFailed(ctx context.Context, order *models.Order)
}

// Trigger describes one reconciliation attempt. OwnerID is empty for the
// webhook channel; for client polls it must match the order's owner.
// ClaimedState is what the webhook asserted and is never trusted on its own.
type Trigger struct {
	MerchantOrderID string
	OwnerID         string
	ClaimedState    string
	GatewayTxnID    string
	RawPayload      []byte
}

type Result struct {
	TxnStatus    string
	OrderStatus  string
	OrderID      string
	AlreadyFinal bool
}

func (r *Result) Message() string {
	switch r.TxnStatus {
	case models.TxnStatusSuccess:
		return "Payment confirmed successfully"
	case models.TxnStatusFailed:
		return "Payment failed"
	default:
		return "Payment is still being processed"
	}
}

// Reconciler merges the two confirmation channels (gateway webhook, client
// status poll) into one idempotent transition per transaction.
type Reconciler struct {
	DB       *gorm.DB
	Gateway  Gateway
	Notifier Notifier

	mu    sync.Mutex
	locks map[string]*refLock
}

func NewReconciler(db *gorm.DB, gw Gateway, n Notifier) *Reconciler {
	return &Reconciler{DB: db, Gateway: gw, Notifier: n, locks: make(map[string]*refLock)}
}

// refLock is a per-merchant-order-id mutex with a holder count so entries
// can be evicted once the last caller releases.
type refLock struct {
	sync.Mutex
	refs int
}

// acquire takes the per-transaction mutex. Together with the row lock it
// serializes a racing webhook and poll for the same merchant order id.
func (r *Reconciler) acquire(merchantOrderID string) *refLock {
	r.mu.Lock()
	l, ok := r.locks[merchantOrderID]
	if !ok {
		l = &refLock{}
		r.locks[merchantOrderID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return l
}

func (r *Reconciler) release(merchantOrderID string, l *refLock) {
	l.Unlock()

	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, merchantOrderID)
	}
	r.mu.Unlock()
}

// Reconcile looks up the transaction under an exclusive lock, short-circuits
// terminal states, re-confirms the authoritative state against the gateway
// and applies the resulting transition exactly once. Both HTTP channels call
// this after authenticating their own trigger.
func (r *Reconciler) Reconcile(ctx context.Context, trig Trigger) (*Result, error) {
	l := logging.FromContext(ctx).With("merchant_order_id", trig.MerchantOrderID)

	lock := r.acquire(trig.MerchantOrderID)
	defer r.release(trig.MerchantOrderID, lock)

	var (
		res        Result
		transition string
		order      models.Order
	)

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		// sqlite has no SELECT FOR UPDATE; its single writer plus the
		// per-transaction mutex above covers serialization there.
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var txn models.Transaction
		if err := q.Where("merchant_order_id = ?", trig.MerchantOrderID).First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTxnNotFound
			}
			return err
		}

		if err := tx.First(&order, "id = ?", txn.OrderID).Error; err != nil {
			return err
		}

		if trig.OwnerID != "" && order.UserID != trig.OwnerID {
			return ErrForbidden
		}

		// Terminal states never transition again; redelivered webhooks and
		// repeated polls just read back the stored outcome.
		if txn.Status == models.TxnStatusSuccess || txn.Status == models.TxnStatusFailed {
			res = Result{TxnStatus: txn.Status, OrderStatus: order.Status, OrderID: order.ID, AlreadyFinal: true}
			return nil
		}

		// The webhook's claim is never acted on directly. The gateway API is
		// the authoritative source for both channels.
		status, err := r.Gateway.CheckStatus(ctx, trig.MerchantOrderID)
		if err != nil {
			return fmt.Errorf("re-confirming payment state: %w", err)
		}
		if trig.ClaimedState != "" && MapState(trig.ClaimedState) != MapState(status.State) {
			l.Warn("webhook state disagrees with gateway api",
				"webhook_state", trig.ClaimedState, "api_state", status.State)
		}

		newStatus := MapState(status.State)

		txn.Status = newStatus
		if trig.GatewayTxnID != "" {
			txn.GatewayTxnID = trig.GatewayTxnID
		}
		switch {
		case len(status.Raw) > 0:
			txn.ResponsePayload = string(status.Raw)
		case len(trig.RawPayload) > 0:
			txn.ResponsePayload = string(trig.RawPayload)
		}
		if err := tx.Save(&txn).Error; err != nil {
			return err
		}

		switch newStatus {
		case models.TxnStatusSuccess:
			order.Status = models.OrderStatusProcessing
			if err := tx.Save(&order).Error; err != nil {
				return err
			}
			// The cart is normally cleared at materialization; clearing again
			// here covers carts rebuilt between initiation and confirmation.
			if err := tx.Where("user_id = ?", order.UserID).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
			if err := finalizeCouponUsage(tx, &order); err != nil {
				return err
			}
			transition = models.TxnStatusSuccess

		case models.TxnStatusFailed:
			order.Status = models.OrderStatusCancelled
			if err := tx.Save(&order).Error; err != nil {
				return err
			}
			// Cart is left intact so the buyer can retry checkout.
			transition = models.TxnStatusFailed
		}

		res = Result{TxnStatus: txn.Status, OrderStatus: order.Status, OrderID: order.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch transition {
	case models.TxnStatusSuccess:
		l.Info("payment reconciled", "txn_status", res.TxnStatus, "order_status", res.OrderStatus)
		if r.Notifier != nil {
			r.Notifier.PaymentSucceeded(ctx, &order)
		}
	case models.TxnStatusFailed:
		l.Info("payment reconciled", "txn_status", res.TxnStatus, "order_status", res.OrderStatus)
		if r.Notifier != nil {
			r.Notifier.PaymentFailed(ctx, &order)
		}
	}

	return &res, nil
}

// finalizeCouponUsage records the redemption exactly once. The usage row is
// keyed on (user, coupon); the counter moves only when the row is new, so a
// redelivered success cannot double-increment.
func finalizeCouponUsage(tx *gorm.DB, order *models.Order) error {
	if order.CouponID == nil {
		return nil
	}

	usage := models.CouponUsage{UserID: order.UserID, CouponID: *order.CouponID, OrderID: order.ID}
	created := tx.Where("user_id = ? AND coupon_id = ?", order.UserID, *order.CouponID).
		FirstOrCreate(&usage)
	if created.Error != nil {
		return created.Error
	}
	if created.RowsAffected == 0 {
		return nil
	}

	return tx.Model(&models.Coupon{}).
		Where("id = ?", *order.CouponID).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1)).Error
}
