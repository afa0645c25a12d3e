package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/devrup/organics-api/internal/checkout"
	"github.com/devrup/organics-api/internal/coupon"
	"github.com/devrup/organics-api/internal/models"
	"github.com/devrup/organics-api/internal/notify"
	"github.com/devrup/organics-api/internal/payment"
)

var testSecret = []byte("test-secret")

// fakeGateway scripts the external processor for handler tests.
type fakeGateway struct {
	state       string
	initErr     error
	statusErr   error
	webhookErr  error
	statusCalls int
}

func (f *fakeGateway) InitiatePayment(ctx context.Context, amountMinor int64, merchantOrderID, redirectURL string) (*payment.InitiateResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &payment.InitiateResult{
		RedirectURL:     "https://pay.example/checkout/" + merchantOrderID,
		MerchantOrderID: merchantOrderID,
	}, nil
}

func (f *fakeGateway) CheckStatus(ctx context.Context, merchantOrderID string) (*payment.StatusResult, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &payment.StatusResult{State: f.state, Raw: []byte(`{"state":"` + f.state + `"}`)}, nil
}

func (f *fakeGateway) VerifyWebhook(authHeader string, body []byte) (*payment.WebhookPayload, error) {
	if f.webhookErr != nil {
		return nil, f.webhookErr
	}
	var envelope struct {
		Event   string                 `json:"event"`
		Payload payment.WebhookPayload `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	p := envelope.Payload
	p.Event = envelope.Event
	p.Raw = body
	return &p, nil
}

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB
	GW *fakeGateway

	Cart     *CartHandler
	Coupon   *CouponHandler
	Checkout *CheckoutHandler
	Payment  *PaymentHandler
	Order    *OrderHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Address{}, &models.ProductVariant{},
		&models.CartItem{}, &models.Coupon{}, &models.CouponUsage{},
		&models.Order{}, &models.OrderItem{}, &models.Transaction{},
		&models.Notification{},
	))

	gw := &fakeGateway{state: "COMPLETED"}
	validator := &coupon.Validator{DB: db}
	dispatcher := &notify.Dispatcher{DB: db}
	svc := &checkout.Service{DB: db, Coupons: validator, Gateway: gw, FrontendURL: "https://shop.example"}
	reconciler := payment.NewReconciler(db, gw, dispatcher)

	return &testEnv{
		T:        t,
		E:        echo.New(),
		DB:       db,
		GW:       gw,
		Cart:     &CartHandler{DB: db, JWTSecret: testSecret},
		Coupon:   &CouponHandler{Validator: validator, JWTSecret: testSecret},
		Checkout: &CheckoutHandler{Svc: svc, Notifier: dispatcher, JWTSecret: testSecret},
		Payment:  &PaymentHandler{Reconciler: reconciler, Gateway: gw, JWTSecret: testSecret},
		Order:    &OrderHandler{DB: db, Notifier: dispatcher, JWTSecret: testSecret},
	}
}

func makeToken(t *testing.T, userID, role string) *http.Cookie {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return &http.Cookie{Name: "accessToken", Value: signed, Path: "/"}
}

func (env *testEnv) doJSONRequest(method, target string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	env.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	return rec, env.E.NewContext(req, rec)
}

func requireHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T: %v", err, err)
	require.Equal(t, code, he.Code)
	return he
}

// seedUserWithCart creates a user, an address and a cart worth 260.00 after
// product discounts (2x100 discounted to 80, plus 1x100).
func (env *testEnv) seedUserWithCart(t *testing.T) (userID string, addressID uint) {
	t.Helper()
	user := models.User{ID: "user-1", Email: "buyer@example.com", FirstName: "Asha"}
	require.NoError(t, env.DB.Create(&user).Error)

	addr := models.Address{UserID: user.ID, Name: "Asha", AddressLine1: "12 Green Lane", City: "Pune"}
	require.NoError(t, env.DB.Create(&addr).Error)

	v1 := models.ProductVariant{SKU: "TEA-250", Name: "Green Tea 250g", Price: 100, IsDiscountActive: true, DiscountPrice: 80}
	v2 := models.ProductVariant{SKU: "HONEY-500", Name: "Raw Honey 500g", Price: 100}
	require.NoError(t, env.DB.Create(&v1).Error)
	require.NoError(t, env.DB.Create(&v2).Error)

	require.NoError(t, env.DB.Create(&models.CartItem{UserID: user.ID, ProductVariantID: v1.ID, Quantity: 2}).Error)
	require.NoError(t, env.DB.Create(&models.CartItem{UserID: user.ID, ProductVariantID: v2.ID, Quantity: 1}).Error)

	return user.ID, addr.ID
}
