package pricing

import (
	"errors"

	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/shared/money"
)

var (
	ErrUnavailableMode = errors.New("pricing: service is not offered in the requested mode")
	ErrInvalidCoupon   = errors.New("pricing: coupon is not valid")
	ErrInvalidLodging  = errors.New("pricing: lodging nights and rooms must be positive")
)

// DefaultTaxPercent is the flat tax applied after discounts.
const DefaultTaxPercent = 18

const (
	LineMaterials = "materials"
	LineRecording = "recording"
	LineLodging   = "lodging"
)

type Line struct {
	Name   string
	Amount money.Money
}

type Lodging struct {
	RoomID      string
	NightlyRate int64
	Nights      int
	Rooms       int
}

type Input struct {
	Mode       catalog.Mode
	Materials  catalog.Materials
	Recording  bool
	Lodging    *Lodging
	CouponCode string
}

// Breakdown is the itemised price of one booking.
type Breakdown struct {
	Base       money.Money
	AddOns     []Line
	Subtotal   money.Money
	CouponCode string
	Discount   money.Money
	TaxPercent int64
	Tax        money.Money
	Total      money.Money
}

func (b Breakdown) Copy() Breakdown {
	clone := b
	clone.AddOns = append([]Line(nil), b.AddOns...)
	return clone
}

// Engine computes breakdowns. It is pure: equal inputs always produce equal outputs.
type Engine struct {
	TaxPercent int64
}

func NewEngine(taxPercent int64) Engine {
	if taxPercent < 0 {
		taxPercent = DefaultTaxPercent
	}
	return Engine{TaxPercent: taxPercent}
}

// Compute prices in against prices. coupon is the catalog entry for in.CouponCode, or nil
// when the code is unknown or no longer usable.
func (e Engine) Compute(in Input, prices catalog.PriceList, coupon *catalog.Coupon) (Breakdown, error) {
	currency := prices.CurrencyCode()
	baseAmount, ok := prices.BaseFor(in.Mode)
	if !ok {
		return Breakdown{}, ErrUnavailableMode
	}
	out := Breakdown{
		Base:       money.Must(baseAmount, currency),
		TaxPercent: e.TaxPercent,
	}
	subtotal := out.Base
	addLine := func(name string, amount int64) {
		line := Line{Name: name, Amount: money.Must(amount, currency)}
		out.AddOns = append(out.AddOns, line)
		subtotal, _ = subtotal.Add(line.Amount)
	}
	if in.Materials == catalog.MaterialsProvider && prices.MaterialsSurcharge > 0 {
		addLine(LineMaterials, prices.MaterialsSurcharge)
	}
	if in.Recording && prices.RecordingSurcharge > 0 {
		addLine(LineRecording, prices.RecordingSurcharge)
	}
	if in.Lodging != nil {
		if in.Lodging.Nights <= 0 || in.Lodging.Rooms <= 0 || in.Lodging.NightlyRate < 0 {
			return Breakdown{}, ErrInvalidLodging
		}
		addLine(LineLodging, in.Lodging.NightlyRate*int64(in.Lodging.Nights)*int64(in.Lodging.Rooms))
	}
	out.Subtotal = subtotal

	discount, err := discountFor(in.CouponCode, coupon, subtotal)
	if err != nil {
		return Breakdown{}, err
	}
	if !discount.IsZero() {
		out.CouponCode = catalog.NormalizeCode(in.CouponCode)
	}
	out.Discount = discount

	taxable, _ := subtotal.Sub(discount)
	taxable = taxable.FloorZero()
	out.Tax = taxable.Percent(e.TaxPercent)
	out.Total, _ = taxable.Add(out.Tax)
	return out, nil
}

func discountFor(code string, coupon *catalog.Coupon, subtotal money.Money) (money.Money, error) {
	zero := money.Zero(subtotal.Currency)
	if catalog.NormalizeCode(code) == "" {
		return zero, nil
	}
	if coupon == nil || catalog.NormalizeCode(coupon.Code) != catalog.NormalizeCode(code) {
		return zero, ErrInvalidCoupon
	}
	var amount money.Money
	switch coupon.Kind {
	case catalog.CouponPercent:
		pct := coupon.Value
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		amount = subtotal.Percent(pct)
	case catalog.CouponFlat:
		if coupon.Value < 0 {
			return zero, ErrInvalidCoupon
		}
		amount = money.Money{Amount: coupon.Value, Currency: subtotal.Currency}
	default:
		return zero, ErrInvalidCoupon
	}
	return amount.Min(subtotal), nil
}
