package pricing

import (
	"errors"
	"math"

	"github.com/devrup/organics-api/internal/models"
)

var ErrEmptyCart = errors.New("cart is empty")

// Line is one cart line snapshot handed to the engine. UnitPrice is the
// variant's base price; DiscountPrice applies only when DiscountActive.
type Line struct {
	VariantID      uint
	Quantity       uint
	UnitPrice      float64
	DiscountActive bool
	DiscountPrice  float64
}

func (l Line) EffectivePrice() float64 {
	if l.DiscountActive && l.DiscountPrice > 0 {
		return l.DiscountPrice
	}
	return l.UnitPrice
}

type Breakdown struct {
	Subtotal                  float64 `json:"subtotal"`
	ProductDiscount           float64 `json:"product_discount"`
	TotalAfterProductDiscount float64 `json:"-"`
	CouponDiscount            float64 `json:"coupon_discount"`
	TotalDiscount             float64 `json:"total_discount"`
	FinalPrice                float64 `json:"final_price"`
}

// Quote computes the full price breakdown for a cart snapshot. It is a pure
// function: no database access, no mutation.
func Quote(lines []Line, c *models.Coupon) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, ErrEmptyCart
	}

	var subtotal, productDiscount float64
	for _, l := range lines {
		base := l.UnitPrice * float64(l.Quantity)
		subtotal += base
		if l.DiscountActive && l.DiscountPrice > 0 {
			productDiscount += base - l.DiscountPrice*float64(l.Quantity)
		}
	}

	afterProduct := subtotal - productDiscount

	var couponDiscount float64
	if c != nil {
		couponDiscount = CouponDiscount(c, afterProduct)
	}

	final := subtotal - productDiscount - couponDiscount
	if final < 0 {
		final = 0
	}

	return Breakdown{
		Subtotal:                  Round(subtotal),
		ProductDiscount:           Round(productDiscount),
		TotalAfterProductDiscount: Round(afterProduct),
		CouponDiscount:            Round(couponDiscount),
		TotalDiscount:             Round(productDiscount + couponDiscount),
		FinalPrice:                Round(final),
	}, nil
}

// CouponDiscount applies the coupon to the total after product discounts.
// Flat coupons are not capped here; the final price is clamped downstream.
func CouponDiscount(c *models.Coupon, afterProductDiscount float64) float64 {
	switch c.DiscountType {
	case models.DiscountTypePercent:
		d := afterProductDiscount * c.DiscountValue / 100
		if c.MaxDiscount != nil && d > *c.MaxDiscount {
			d = *c.MaxDiscount
		}
		return Round(d)
	case models.DiscountTypeFlat:
		return Round(c.DiscountValue)
	default:
		return 0
	}
}

// Round to two decimal places, the currency precision stored on orders.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
