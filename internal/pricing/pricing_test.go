package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devrup/organics-api/internal/models"
)

func f64(v float64) *float64 { return &v }

func percentCoupon(value float64, maxDiscount *float64) *models.Coupon {
	return &models.Coupon{
		ID:            1,
		Code:          "SAVE10",
		DiscountType:  models.DiscountTypePercent,
		DiscountValue: value,
		MaxDiscount:   maxDiscount,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidTo:       time.Now().Add(time.Hour),
		IsActive:      true,
		UsageLimit:    10,
	}
}

func TestQuoteEmptyCart(t *testing.T) {
	_, err := Quote(nil, nil)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestQuoteNoDiscounts(t *testing.T) {
	lines := []Line{
		{VariantID: 1, Quantity: 2, UnitPrice: 50},
		{VariantID: 2, Quantity: 1, UnitPrice: 30},
	}

	b, err := Quote(lines, nil)
	require.NoError(t, err)
	require.Equal(t, 130.0, b.Subtotal)
	require.Equal(t, 0.0, b.ProductDiscount)
	require.Equal(t, 0.0, b.CouponDiscount)
	require.Equal(t, 130.0, b.FinalPrice)
}

func TestQuoteProductDiscount(t *testing.T) {
	lines := []Line{
		{VariantID: 1, Quantity: 3, UnitPrice: 100, DiscountActive: true, DiscountPrice: 80},
		{VariantID: 2, Quantity: 1, UnitPrice: 40},
	}

	b, err := Quote(lines, nil)
	require.NoError(t, err)
	require.Equal(t, 340.0, b.Subtotal)
	require.Equal(t, 60.0, b.ProductDiscount)
	require.Equal(t, 280.0, b.TotalAfterProductDiscount)
	require.Equal(t, 280.0, b.FinalPrice)
}

func TestQuotePercentCouponAppliesAfterProductDiscount(t *testing.T) {
	lines := []Line{
		{VariantID: 1, Quantity: 2, UnitPrice: 150, DiscountActive: true, DiscountPrice: 100},
	}

	b, err := Quote(lines, percentCoupon(10, nil))
	require.NoError(t, err)
	require.Equal(t, 300.0, b.Subtotal)
	require.Equal(t, 100.0, b.ProductDiscount)
	// 10% of 200, not of 300
	require.Equal(t, 20.0, b.CouponDiscount)
	require.Equal(t, 120.0, b.TotalDiscount)
	require.Equal(t, 180.0, b.FinalPrice)
}

func TestQuotePercentCouponCap(t *testing.T) {
	lines := []Line{{VariantID: 1, Quantity: 1, UnitPrice: 1000}}

	b, err := Quote(lines, percentCoupon(20, f64(50)))
	require.NoError(t, err)
	require.Equal(t, 50.0, b.CouponDiscount)
	require.Equal(t, 950.0, b.FinalPrice)
}

func TestQuoteFlatCouponClampsAtZero(t *testing.T) {
	lines := []Line{{VariantID: 1, Quantity: 1, UnitPrice: 30}}
	c := &models.Coupon{
		DiscountType:  models.DiscountTypeFlat,
		DiscountValue: 100,
		IsActive:      true,
	}

	b, err := Quote(lines, c)
	require.NoError(t, err)
	require.Equal(t, 100.0, b.CouponDiscount)
	require.Equal(t, 0.0, b.FinalPrice)
}

func TestCouponDiscountUnknownType(t *testing.T) {
	c := &models.Coupon{DiscountType: "bogus", DiscountValue: 50}
	require.Equal(t, 0.0, CouponDiscount(c, 200))
}

func TestEffectivePrice(t *testing.T) {
	require.Equal(t, 80.0, Line{UnitPrice: 100, DiscountActive: true, DiscountPrice: 80}.EffectivePrice())
	require.Equal(t, 100.0, Line{UnitPrice: 100, DiscountActive: false, DiscountPrice: 80}.EffectivePrice())
	require.Equal(t, 100.0, Line{UnitPrice: 100, DiscountActive: true, DiscountPrice: 0}.EffectivePrice())
}

func TestRound(t *testing.T) {
	require.Equal(t, 10.56, Round(10.555))
	require.Equal(t, 10.0, Round(10.0001))
}
