package dto

import "divineconnect/internal/domain/pricing"

type PriceLine struct {
	Name   string   `json:"name"`
	Amount MoneyDTO `json:"amount"`
}

type PriceBreakdown struct {
	Base       MoneyDTO    `json:"base"`
	AddOns     []PriceLine `json:"add_ons,omitempty"`
	Subtotal   MoneyDTO    `json:"subtotal"`
	CouponCode string      `json:"coupon_code,omitempty"`
	Discount   MoneyDTO    `json:"discount"`
	TaxPercent int64       `json:"tax_percent"`
	Tax        MoneyDTO    `json:"tax"`
	Total      MoneyDTO    `json:"total"`
}

func MapPrice(b pricing.Breakdown) PriceBreakdown {
	out := PriceBreakdown{
		Base:       MapMoney(b.Base),
		Subtotal:   MapMoney(b.Subtotal),
		CouponCode: b.CouponCode,
		Discount:   MapMoney(b.Discount),
		TaxPercent: b.TaxPercent,
		Tax:        MapMoney(b.Tax),
		Total:      MapMoney(b.Total),
	}
	for _, line := range b.AddOns {
		out.AddOns = append(out.AddOns, PriceLine{Name: line.Name, Amount: MapMoney(line.Amount)})
	}
	return out
}

// Quote is a priced request that reserves nothing.
type Quote struct {
	ServiceID string         `json:"service_id"`
	Mode      string         `json:"mode"`
	Price     PriceBreakdown `json:"price"`
}
