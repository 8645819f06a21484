package checkout

import (
	"ms-checkout/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// moneyPlaces matches the NUMERIC(14,2) money columns. Percentage discounts are
// rounded half away from zero, the same rule Postgres applies on insert.
const moneyPlaces = 2

// PriceInput is everything the calculator needs. Voucher and Coupon are optional.
type PriceInput struct {
	UnitPrice       decimal.Decimal
	Quantity        int
	Voucher         *models.Voucher
	Coupon          *models.Coupon
	RequestedPoints int64
	AvailablePoints int64
}

type PriceBreakdown struct {
	BasePrice       decimal.Decimal `json:"base_price"`
	VoucherDiscount decimal.Decimal `json:"voucher_discount"`
	CouponDiscount  decimal.Decimal `json:"coupon_discount"`
	Discount        decimal.Decimal `json:"discount"`
	PointsToUse     int64           `json:"points_to_use"`
	TotalPrice      decimal.Decimal `json:"total_price"`
}

// CalculatePrice applies voucher, coupon and points to price × quantity.
// Points never exceed the balance and never push the total below zero.
func CalculatePrice(in PriceInput) PriceBreakdown {
	base := in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))

	voucherDiscount := decimal.Zero
	if v := in.Voucher; v != nil {
		switch v.DiscountType {
		case models.DiscountPercentage:
			voucherDiscount = base.Mul(v.DiscountAmount).Div(hundred).Round(moneyPlaces)
		case models.DiscountFixed:
			voucherDiscount = v.DiscountAmount
		}
	}

	couponDiscount := decimal.Zero
	if in.Coupon != nil {
		couponDiscount = in.Coupon.DiscountAmount
	}

	discount := voucherDiscount.Add(couponDiscount)

	// points are whole units, so only the whole part of what is left is payable with them
	payable := decimal.Max(decimal.Zero, base.Sub(discount)).Floor().IntPart()
	points := min(max(in.RequestedPoints, 0), max(in.AvailablePoints, 0), payable)

	total := decimal.Max(decimal.Zero, base.Sub(discount).Sub(decimal.NewFromInt(points)))

	return PriceBreakdown{
		BasePrice:       base,
		VoucherDiscount: voucherDiscount,
		CouponDiscount:  couponDiscount,
		Discount:        discount,
		PointsToUse:     points,
		TotalPrice:      total,
	}
}
