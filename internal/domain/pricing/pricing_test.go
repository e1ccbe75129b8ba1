package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/domain/catalog"
)

func grihaPravesh() catalog.PriceList {
	return catalog.PriceList{
		Currency: "INR",
		Base: map[catalog.Mode]int64{
			catalog.ModeAtHome:      1100,
			catalog.ModeVirtualLive: 700,
		},
		MaterialsSurcharge: 200,
		RecordingSurcharge: 150,
	}
}

func TestComputeWithMaterials(t *testing.T) {
	engine := NewEngine(DefaultTaxPercent)
	got, err := engine.Compute(Input{Mode: catalog.ModeAtHome, Materials: catalog.MaterialsProvider}, grihaPravesh(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1100), got.Base.Amount)
	require.Len(t, got.AddOns, 1)
	assert.Equal(t, LineMaterials, got.AddOns[0].Name)
	assert.Equal(t, int64(1300), got.Subtotal.Amount)
	assert.Equal(t, int64(0), got.Discount.Amount)
	assert.Equal(t, int64(234), got.Tax.Amount)
	assert.Equal(t, int64(1534), got.Total.Amount)
	assert.Equal(t, "INR", got.Total.Currency)
}

func TestComputePercentCoupon(t *testing.T) {
	engine := NewEngine(DefaultTaxPercent)
	coupon := &catalog.Coupon{Code: "DIVINE10", Kind: catalog.CouponPercent, Value: 10, Active: true}
	got, err := engine.Compute(Input{Mode: catalog.ModeAtHome, Materials: catalog.MaterialsProvider, CouponCode: "divine10"}, grihaPravesh(), coupon)
	require.NoError(t, err)

	assert.Equal(t, int64(1300), got.Subtotal.Amount)
	assert.Equal(t, int64(130), got.Discount.Amount)
	assert.Equal(t, int64(211), got.Tax.Amount)
	assert.Equal(t, int64(1381), got.Total.Amount)
	assert.Equal(t, "DIVINE10", got.CouponCode)
}

func TestComputeFlatCouponFloorsAtZero(t *testing.T) {
	prices := catalog.PriceList{Base: map[catalog.Mode]int64{catalog.ModeVirtualLive: 300}}
	coupon := &catalog.Coupon{Code: "BIG500", Kind: catalog.CouponFlat, Value: 500, Active: true}
	got, err := NewEngine(DefaultTaxPercent).Compute(Input{Mode: catalog.ModeVirtualLive, CouponCode: "BIG500"}, prices, coupon)
	require.NoError(t, err)

	assert.Equal(t, int64(300), got.Discount.Amount)
	assert.Equal(t, int64(0), got.Tax.Amount)
	assert.Equal(t, int64(0), got.Total.Amount)
}

func TestComputeUnavailableMode(t *testing.T) {
	_, err := NewEngine(DefaultTaxPercent).Compute(Input{Mode: catalog.ModeAtTemple}, grihaPravesh(), nil)
	assert.ErrorIs(t, err, ErrUnavailableMode)
}

func TestComputeFreeModeIsAvailable(t *testing.T) {
	prices := catalog.PriceList{
		Base: map[catalog.Mode]int64{
			catalog.ModeVirtualLive: 0,
			catalog.ModeAtTemple:    -1,
		},
		MaterialsSurcharge: 200,
	}

	got, err := NewEngine(DefaultTaxPercent).Compute(Input{Mode: catalog.ModeVirtualLive}, prices, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Base.Amount)
	assert.Equal(t, int64(0), got.Total.Amount)

	withMaterials, err := NewEngine(DefaultTaxPercent).Compute(Input{Mode: catalog.ModeVirtualLive, Materials: catalog.MaterialsProvider}, prices, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(236), withMaterials.Total.Amount)

	_, err = NewEngine(DefaultTaxPercent).Compute(Input{Mode: catalog.ModeAtTemple}, prices, nil)
	assert.ErrorIs(t, err, ErrUnavailableMode)
	assert.Equal(t, []catalog.Mode{catalog.ModeVirtualLive}, prices.Modes())
}

func TestComputeInvalidCoupon(t *testing.T) {
	engine := NewEngine(DefaultTaxPercent)
	_, err := engine.Compute(Input{Mode: catalog.ModeAtHome, CouponCode: "NOPE"}, grihaPravesh(), nil)
	assert.ErrorIs(t, err, ErrInvalidCoupon)

	other := &catalog.Coupon{Code: "OTHER", Kind: catalog.CouponFlat, Value: 10, Active: true}
	_, err = engine.Compute(Input{Mode: catalog.ModeAtHome, CouponCode: "NOPE"}, grihaPravesh(), other)
	assert.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestComputeLodgingAndRecording(t *testing.T) {
	in := Input{
		Mode:      catalog.ModeVirtualLive,
		Recording: true,
		Lodging:   &Lodging{RoomID: "deluxe", NightlyRate: 2500, Nights: 2, Rooms: 2},
	}
	got, err := NewEngine(DefaultTaxPercent).Compute(in, grihaPravesh(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(700+150+10000), got.Subtotal.Amount)
	assert.Len(t, got.AddOns, 2)

	in.Lodging.Nights = 0
	_, err = NewEngine(DefaultTaxPercent).Compute(in, grihaPravesh(), nil)
	assert.ErrorIs(t, err, ErrInvalidLodging)
}

func TestComputeDeterministic(t *testing.T) {
	engine := NewEngine(DefaultTaxPercent)
	coupon := &catalog.Coupon{Code: "DIVINE10", Kind: catalog.CouponPercent, Value: 10, Active: true}
	in := Input{Mode: catalog.ModeAtHome, Materials: catalog.MaterialsProvider, Recording: true, CouponCode: "DIVINE10"}
	first, err := engine.Compute(in, grihaPravesh(), coupon)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := engine.Compute(in, grihaPravesh(), coupon)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPercentRoundsHalfUp(t *testing.T) {
	prices := catalog.PriceList{Base: map[catalog.Mode]int64{catalog.ModeVirtualLive: 105}}
	coupon := &catalog.Coupon{Code: "HALF", Kind: catalog.CouponPercent, Value: 10, Active: true}
	got, err := NewEngine(0).Compute(Input{Mode: catalog.ModeVirtualLive, CouponCode: "HALF"}, prices, coupon)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Discount.Amount)
	assert.Equal(t, int64(94), got.Total.Amount)
}
