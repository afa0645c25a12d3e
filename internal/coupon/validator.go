package coupon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/devrup/organics-api/internal/models"
	"github.com/devrup/organics-api/internal/pricing"
)

var (
	ErrNotFound         = errors.New("coupon not found")
	ErrNotActive        = errors.New("coupon is not active")
	ErrExpired          = errors.New("coupon is not valid at this time")
	ErrMinPurchase      = errors.New("minimum purchase amount not met")
	ErrUsageLimit       = errors.New("coupon usage limit has been reached")
	ErrAlreadyUsed      = errors.New("coupon already used by this user")
	ErrDiscountMismatch = errors.New("discount mismatch")
)

// DiscountTolerance is the maximum difference allowed between a
// client-submitted discount figure and the server recomputation.
const DiscountTolerance = 0.01

type Validator struct {
	DB *gorm.DB
}

// Validate runs every eligibility check for a coupon without mutating
// anything. cartTotal is the cart total after product discounts, the base the
// coupon applies to.
func (v *Validator) Validate(ctx context.Context, c *models.Coupon, userID string, cartTotal float64, now time.Time) error {
	if !c.IsActive {
		return ErrNotActive
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
		return ErrExpired
	}
	if cartTotal < c.MinPurchaseAmount {
		return fmt.Errorf("%w: minimum purchase of %.2f required", ErrMinPurchase, c.MinPurchaseAmount)
	}
	if c.UsedCount >= c.UsageLimit {
		return ErrUsageLimit
	}

	var count int64
	if err := v.DB.WithContext(ctx).Model(&models.CouponUsage{}).
		Where("user_id = ? AND coupon_id = ?", userID, c.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyUsed
	}
	return nil
}

// CheckClaimedDiscount recomputes the coupon discount server-side and compares
// it against the client-submitted figure. Client values are untrusted input.
func (v *Validator) CheckClaimedDiscount(c *models.Coupon, cartTotal, claimed float64) (float64, error) {
	actual := pricing.CouponDiscount(c, cartTotal)
	if math.Abs(actual-claimed) > DiscountTolerance {
		return actual, fmt.Errorf("%w: expected %.2f, received %.2f", ErrDiscountMismatch, actual, claimed)
	}
	return actual, nil
}

// Lookup fetches an active coupon by code.
func (v *Validator) Lookup(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := v.DB.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
