package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devrup/organics-api/internal/coupon"
	"github.com/devrup/organics-api/internal/logging"
	"github.com/devrup/organics-api/internal/models"
	"github.com/devrup/organics-api/internal/payment"
	"github.com/devrup/organics-api/internal/pricing"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrAddressNotFound = errors.New("address not found")
)

type Input struct {
	UserID    string
	AddressID uint
	CouponID  *uint

	// Client-submitted discount figures, compared against server arithmetic.
	ClaimedCouponDiscount  float64
	ClaimedProductDiscount float64
	CheckProductDiscount   bool
}

type PlacedOrder struct {
	Order     models.Order
	Breakdown pricing.Breakdown
}

// Service converts a mutable cart into an immutable order. Materialization is
// a single transaction: order, lines, coupon bookkeeping and cart cleanup all
// land together or not at all.
type Service struct {
	DB          *gorm.DB
	Coupons     *coupon.Validator
	Gateway     payment.Gateway
	FrontendURL string
}

func (s *Service) loadCartLines(tx *gorm.DB, userID string) ([]models.CartItem, []pricing.Line, error) {
	var items []models.CartItem
	if err := tx.Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		var v models.ProductVariant
		if err := tx.First(&v, it.ProductVariantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, fmt.Errorf("product variant %d not found", it.ProductVariantID)
			}
			return nil, nil, err
		}
		lines = append(lines, pricing.Line{
			VariantID:      v.ID,
			Quantity:       it.Quantity,
			UnitPrice:      v.Price,
			DiscountActive: v.IsDiscountActive,
			DiscountPrice:  v.DiscountPrice,
		})
	}
	return items, lines, nil
}

// Materialize places an order from the user's cart. For online payment the
// order starts pending and awaits reconciliation; for COD it stays pending
// until an admin advances it.
func (s *Service) Materialize(ctx context.Context, in Input, method string) (*PlacedOrder, error) {
	var placed PlacedOrder

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, lines, err := s.loadCartLines(tx, in.UserID)
		if err != nil {
			return err
		}

		var addr models.Address
		if err := tx.Where("id = ? AND user_id = ?", in.AddressID, in.UserID).First(&addr).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAddressNotFound
			}
			return err
		}

		var cpn *models.Coupon
		if in.CouponID != nil {
			var c models.Coupon
			if err := tx.First(&c, *in.CouponID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return coupon.ErrNotFound
				}
				return err
			}
			cpn = &c
		}

		breakdown, err := pricing.Quote(lines, cpn)
		if err != nil {
			if errors.Is(err, pricing.ErrEmptyCart) {
				return ErrEmptyCart
			}
			return err
		}

		if in.CheckProductDiscount &&
			math.Abs(breakdown.ProductDiscount-in.ClaimedProductDiscount) > coupon.DiscountTolerance {
			return fmt.Errorf("%w: expected product discount %.2f, received %.2f",
				coupon.ErrDiscountMismatch, breakdown.ProductDiscount, in.ClaimedProductDiscount)
		}

		if cpn != nil {
			if err := s.Coupons.Validate(ctx, cpn, in.UserID, breakdown.TotalAfterProductDiscount, time.Now()); err != nil {
				return err
			}
			if _, err := s.Coupons.CheckClaimedDiscount(cpn, breakdown.TotalAfterProductDiscount, in.ClaimedCouponDiscount); err != nil {
				return err
			}
		}

		order := models.Order{
			ID:             uuid.NewString(),
			UserID:         in.UserID,
			AddressID:      addr.ID,
			TotalPrice:     breakdown.FinalPrice,
			DiscountAmount: breakdown.TotalDiscount,
			PaymentMethod:  method,
			Status:         models.OrderStatusPending,
		}
		if cpn != nil {
			order.CouponID = &cpn.ID
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for i, it := range items {
			oi := models.OrderItem{
				OrderID:          order.ID,
				ProductVariantID: it.ProductVariantID,
				Quantity:         it.Quantity,
				Price:            lines[i].EffectivePrice(),
			}
			if err := tx.Create(&oi).Error; err != nil {
				return err
			}
			order.Items = append(order.Items, oi)
		}

		if cpn != nil {
			usage := models.CouponUsage{UserID: in.UserID, CouponID: cpn.ID, OrderID: order.ID}
			if err := tx.Create(&usage).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Coupon{}).
				Where("id = ?", cpn.ID).
				UpdateColumn("used_count", gorm.Expr("used_count + ?", 1)).Error; err != nil {
				return err
			}
		}

		// COD consumes the cart immediately. An online cart must survive
		// until the payment confirms: reconciliation clears it on SUCCESS
		// and a FAILED payment leaves it intact for retry.
		if method != models.PaymentMethodOnline {
			if err := tx.Where("user_id = ?", in.UserID).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
		}

		placed = PlacedOrder{Order: order, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &placed, nil
}

type OnlineInitiation struct {
	PaymentURL      string
	OrderID         string
	MerchantOrderID string
}

// InitiateOnline materializes the order, then asks the gateway for a payment
// redirect. If initiation fails the just-created order is deleted so no
// orphan pending orders survive a gateway outage.
func (s *Service) InitiateOnline(ctx context.Context, in Input) (*OnlineInitiation, error) {
	placed, err := s.Materialize(ctx, in, models.PaymentMethodOnline)
	if err != nil {
		return nil, err
	}
	order := placed.Order

	merchantOrderID := newMerchantOrderID(order.ID)
	redirectURL := fmt.Sprintf("%s/payment-status/%s", s.FrontendURL, merchantOrderID)
	amountMinor := int64(math.Round(order.TotalPrice * 100))

	result, err := s.Gateway.InitiatePayment(ctx, amountMinor, merchantOrderID, redirectURL)
	if err != nil {
		if rbErr := s.rollbackOrder(ctx, &order); rbErr != nil {
			logging.FromContext(ctx).Error("failed to roll back order after gateway error",
				"order_id", order.ID, "error", rbErr)
		}
		return nil, err
	}

	txn := models.Transaction{
		OrderID:         order.ID,
		MerchantOrderID: result.MerchantOrderID,
		Amount:          order.TotalPrice,
		Status:          models.TxnStatusPending,
		GatewayTxnID:    result.GatewayTxnID,
	}
	// Without the transaction row no webhook or poll can ever find this
	// payment, so the order must not survive either.
	if err := s.DB.WithContext(ctx).Create(&txn).Error; err != nil {
		if rbErr := s.rollbackOrder(ctx, &order); rbErr != nil {
			logging.FromContext(ctx).Error("failed to roll back order after transaction create error",
				"order_id", order.ID, "error", rbErr)
		}
		return nil, fmt.Errorf("recording payment transaction: %w", err)
	}

	logging.FromContext(ctx).Info("payment initiated",
		"order_id", order.ID, "merchant_order_id", merchantOrderID)

	return &OnlineInitiation{
		PaymentURL:      result.RedirectURL,
		OrderID:         order.ID,
		MerchantOrderID: result.MerchantOrderID,
	}, nil
}

// rollbackOrder compensates a failed gateway initiation: the order, its lines
// and its coupon bookkeeping are removed in one transaction.
func (s *Service) rollbackOrder(ctx context.Context, order *models.Order) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		if order.CouponID != nil {
			res := tx.Where("user_id = ? AND coupon_id = ? AND order_id = ?",
				order.UserID, *order.CouponID, order.ID).Delete(&models.CouponUsage{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				if err := tx.Model(&models.Coupon{}).
					Where("id = ? AND used_count > 0", *order.CouponID).
					UpdateColumn("used_count", gorm.Expr("used_count - ?", 1)).Error; err != nil {
					return err
				}
			}
		}
		return tx.Delete(&models.Order{}, "id = ?", order.ID).Error
	})
}

func newMerchantOrderID(orderID string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORDER_%s_%s", orderID, suffix)
}
