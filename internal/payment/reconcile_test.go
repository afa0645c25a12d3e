package payment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/devrup/organics-api/internal/models"
)

type fakeGateway struct {
	mu     sync.Mutex
	state  string
	calls  int32
	refuse error
}

func (f *fakeGateway) InitiatePayment(ctx context.Context, amountMinor int64, merchantOrderID, redirectURL string) (*InitiateResult, error) {
	return &InitiateResult{RedirectURL: "https://pay.example/redirect", MerchantOrderID: merchantOrderID}, nil
}

func (f *fakeGateway) CheckStatus(ctx context.Context, merchantOrderID string) (*StatusResult, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse != nil {
		return nil, f.refuse
	}
	return &StatusResult{State: f.state, Raw: []byte(`{"state":"` + f.state + `"}`)}, nil
}

func (f *fakeGateway) VerifyWebhook(authHeader string, body []byte) (*WebhookPayload, error) {
	return nil, ErrInvalidSignature
}

type recordingNotifier struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
}

func (n *recordingNotifier) PaymentSucceeded(ctx context.Context, order *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded = append(n.succeeded, order.ID)
}

func (n *recordingNotifier) PaymentFailed(ctx context.Context, order *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, order.ID)
}

func newReconcileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// Every pooled connection to :memory: would get its own database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Order{}, &models.OrderItem{}, &models.Transaction{},
		&models.CartItem{}, &models.Coupon{}, &models.CouponUsage{},
	))
	return db
}

type fixture struct {
	db       *gorm.DB
	gw       *fakeGateway
	notifier *recordingNotifier
	rec      *Reconciler
	order    models.Order
	coupon   models.Coupon
}

func newFixture(t *testing.T, gatewayState string) *fixture {
	t.Helper()
	db := newReconcileDB(t)

	cpn := models.Coupon{
		Code:          "SAVE20",
		DiscountType:  models.DiscountTypeFlat,
		DiscountValue: 20,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidTo:       time.Now().Add(time.Hour),
		IsActive:      true,
		UsageLimit:    10,
	}
	require.NoError(t, db.Create(&cpn).Error)

	order := models.Order{
		ID:            "ord-uuid-1",
		UserID:        "user-1",
		AddressID:     1,
		TotalPrice:    240,
		PaymentMethod: models.PaymentMethodOnline,
		Status:        models.OrderStatusPending,
		CouponID:      &cpn.ID,
	}
	require.NoError(t, db.Create(&order).Error)
	require.NoError(t, db.Create(&models.Transaction{
		OrderID:         order.ID,
		MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34",
		Amount:          240,
		Status:          models.TxnStatusPending,
	}).Error)
	require.NoError(t, db.Create(&models.CartItem{UserID: "user-1", ProductVariantID: 1, Quantity: 2}).Error)

	gw := &fakeGateway{state: gatewayState}
	notifier := &recordingNotifier{}
	return &fixture{
		db:       db,
		gw:       gw,
		notifier: notifier,
		rec:      NewReconciler(db, gw, notifier),
		order:    order,
		coupon:   cpn,
	}
}

func (f *fixture) cartCount(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("user_id = ?", "user-1").Count(&n).Error)
	return n
}

func (f *fixture) usedCount(t *testing.T) uint {
	var c models.Coupon
	require.NoError(t, f.db.First(&c, f.coupon.ID).Error)
	return c.UsedCount
}

func TestReconcileSuccess(t *testing.T) {
	f := newFixture(t, "COMPLETED")

	res, err := f.rec.Reconcile(context.Background(), Trigger{
		MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34",
		ClaimedState:    "COMPLETED",
		GatewayTxnID:    "TXN999",
		RawPayload:      []byte(`{"state":"COMPLETED"}`),
	})
	require.NoError(t, err)
	require.False(t, res.AlreadyFinal)
	require.Equal(t, models.TxnStatusSuccess, res.TxnStatus)
	require.Equal(t, models.OrderStatusProcessing, res.OrderStatus)

	var txn models.Transaction
	require.NoError(t, f.db.Where("merchant_order_id = ?", "ORDER_ord-uuid-1_AB12CD34").First(&txn).Error)
	require.Equal(t, models.TxnStatusSuccess, txn.Status)
	require.Equal(t, "TXN999", txn.GatewayTxnID)
	require.NotEmpty(t, txn.ResponsePayload)

	require.Equal(t, int64(0), f.cartCount(t))
	require.Equal(t, uint(1), f.usedCount(t))

	var usages int64
	require.NoError(t, f.db.Model(&models.CouponUsage{}).
		Where("user_id = ? AND coupon_id = ?", "user-1", f.coupon.ID).Count(&usages).Error)
	require.Equal(t, int64(1), usages)

	require.Equal(t, []string{"ord-uuid-1"}, f.notifier.succeeded)
	require.Empty(t, f.notifier.failed)
}

func TestReconcileFailureKeepsCart(t *testing.T) {
	f := newFixture(t, "FAILED")

	res, err := f.rec.Reconcile(context.Background(), Trigger{
		MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34",
	})
	require.NoError(t, err)
	require.Equal(t, models.TxnStatusFailed, res.TxnStatus)
	require.Equal(t, models.OrderStatusCancelled, res.OrderStatus)

	require.Equal(t, int64(1), f.cartCount(t))
	require.Equal(t, uint(0), f.usedCount(t))
	require.Equal(t, []string{"ord-uuid-1"}, f.notifier.failed)
}

func TestReconcileIdempotentRedelivery(t *testing.T) {
	f := newFixture(t, "COMPLETED")

	first, err := f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34"})
	require.NoError(t, err)
	require.False(t, first.AlreadyFinal)

	// A redelivered webhook must not call the gateway again or move counters.
	callsAfterFirst := atomic.LoadInt32(&f.gw.calls)
	second, err := f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34"})
	require.NoError(t, err)
	require.True(t, second.AlreadyFinal)
	require.Equal(t, models.TxnStatusSuccess, second.TxnStatus)
	require.Equal(t, callsAfterFirst, atomic.LoadInt32(&f.gw.calls))
	require.Equal(t, uint(1), f.usedCount(t))
	require.Len(t, f.notifier.succeeded, 1)
}

func TestReconcileConcurrentRace(t *testing.T) {
	f := newFixture(t, "COMPLETED")

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.rec.Reconcile(context.Background(), Trigger{
				MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34",
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Exactly one caller performed the transition.
	finals := 0
	for _, r := range results {
		require.Equal(t, models.TxnStatusSuccess, r.TxnStatus)
		if r.AlreadyFinal {
			finals++
		}
	}
	require.Equal(t, 1, finals)
	require.Equal(t, uint(1), f.usedCount(t))
	require.Len(t, f.notifier.succeeded, 1)
}

func TestReconcileEvictsLockEntries(t *testing.T) {
	f := newFixture(t, "COMPLETED")

	_, err := f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34"})
		}()
	}
	wg.Wait()

	// Per-transaction mutexes do not accumulate after the last caller leaves.
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	require.Empty(t, f.rec.locks)
}

func TestReconcileGatewayStateWins(t *testing.T) {
	// Webhook claims success but the gateway API says failed; the API wins.
	f := newFixture(t, "FAILED")

	res, err := f.rec.Reconcile(context.Background(), Trigger{
		MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34",
		ClaimedState:    "COMPLETED",
	})
	require.NoError(t, err)
	require.Equal(t, models.TxnStatusFailed, res.TxnStatus)
	require.Equal(t, models.OrderStatusCancelled, res.OrderStatus)
}

func TestReconcilePendingState(t *testing.T) {
	f := newFixture(t, "CHECKOUT_ORDER_PROCESSING")

	res, err := f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34"})
	require.NoError(t, err)
	require.Equal(t, models.TxnStatusPending, res.TxnStatus)
	require.Equal(t, models.OrderStatusPending, res.OrderStatus)

	// Still pending, so a later attempt re-checks the gateway.
	f.gw.mu.Lock()
	f.gw.state = "COMPLETED"
	f.gw.mu.Unlock()
	res, err = f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34"})
	require.NoError(t, err)
	require.Equal(t, models.TxnStatusSuccess, res.TxnStatus)
}

func TestReconcileOwnership(t *testing.T) {
	f := newFixture(t, "COMPLETED")

	_, err := f.rec.Reconcile(context.Background(), Trigger{
		MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34",
		OwnerID:         "someone-else",
	})
	require.ErrorIs(t, err, ErrForbidden)

	// The owner's poll goes through.
	res, err := f.rec.Reconcile(context.Background(), Trigger{
		MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34",
		OwnerID:         "user-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.TxnStatusSuccess, res.TxnStatus)
}

func TestReconcileUnknownTransaction(t *testing.T) {
	f := newFixture(t, "COMPLETED")

	_, err := f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_nope_00000000"})
	require.ErrorIs(t, err, ErrTxnNotFound)
}

func TestReconcileGatewayUnavailable(t *testing.T) {
	f := newFixture(t, "COMPLETED")
	f.gw.refuse = ErrGatewayUnavailable

	_, err := f.rec.Reconcile(context.Background(), Trigger{MerchantOrderID: "ORDER_ord-uuid-1_AB12CD34"})
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	// Nothing moved.
	var txn models.Transaction
	require.NoError(t, f.db.Where("merchant_order_id = ?", "ORDER_ord-uuid-1_AB12CD34").First(&txn).Error)
	require.Equal(t, models.TxnStatusPending, txn.Status)
	require.Equal(t, uint(0), f.usedCount(t))
}
