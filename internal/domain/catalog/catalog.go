package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"divineconnect/internal/domain/shared/money"
)

var (
	ErrServiceNotFound = errors.New("catalog: service not found")
	ErrTempleNotFound  = errors.New("catalog: temple not found")
	ErrRoomNotFound    = errors.New("catalog: lodging room not found")
	ErrCouponNotFound  = errors.New("catalog: coupon not found")
)

type ServiceID string

type ServiceKind string

const (
	KindPooja        ServiceKind = "pooja"
	KindTempleSeva   ServiceKind = "temple-seva"
	KindConsultation ServiceKind = "consultation"
)

// Mode is how a service is delivered.
type Mode string

const (
	ModeVirtualLive     Mode = "virtual-live"
	ModeVirtualOnBehalf Mode = "virtual-on-behalf"
	ModeAtTemple        Mode = "at-temple"
	ModeAtHome          Mode = "at-home"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeVirtualLive, ModeVirtualOnBehalf, ModeAtTemple, ModeAtHome:
		return true
	}
	return false
}

// Materials says who supplies ritual materials.
type Materials string

const (
	MaterialsSelf     Materials = "self"
	MaterialsProvider Materials = "provider"
	MaterialsVenue    Materials = "venue"
)

func (m Materials) Valid() bool {
	switch m {
	case MaterialsSelf, MaterialsProvider, MaterialsVenue:
		return true
	}
	return false
}

// PriceList holds per-mode base prices and add-on surcharges in whole units.
type PriceList struct {
	Currency           string
	Base               map[Mode]int64
	MaterialsSurcharge int64
	RecordingSurcharge int64
}

// BaseFor returns the base price for mode. A configured zero is a free offering; modes
// missing from Base, or priced negative, are unavailable.
func (p PriceList) BaseFor(mode Mode) (int64, bool) {
	amount, ok := p.Base[mode]
	if !ok || amount < 0 {
		return 0, false
	}
	return amount, true
}

func (p PriceList) CurrencyCode() string {
	if p.Currency == "" {
		return money.DefaultCurrency
	}
	return p.Currency
}

// Modes lists the modes the price list offers.
func (p PriceList) Modes() []Mode {
	out := make([]Mode, 0, len(p.Base))
	for _, m := range []Mode{ModeVirtualLive, ModeVirtualOnBehalf, ModeAtTemple, ModeAtHome} {
		if _, ok := p.BaseFor(m); ok {
			out = append(out, m)
		}
	}
	return out
}

type Service struct {
	ID       ServiceID
	Kind     ServiceKind
	Name     string
	Category string
	// RequiresProvider is false for services fulfilled by a venue alone.
	RequiresProvider bool
	DurationMinutes  int
	Prices           PriceList
	Active           bool
}

type Temple struct {
	ID   string
	Name string
	City string
}

type LodgingRoom struct {
	ID          string
	HotelName   string
	City        string
	NightlyRate int64
	Capacity    int
}

type CouponKind string

const (
	CouponPercent CouponKind = "percent"
	CouponFlat    CouponKind = "flat"
)

type Coupon struct {
	Code       string
	Kind       CouponKind
	Value      int64
	Active     bool
	ValidFrom  time.Time
	ValidUntil time.Time
}

// UsableAt reports whether the coupon is active and inside its validity window.
func (c Coupon) UsableAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidUntil.IsZero() && now.After(c.ValidUntil) {
		return false
	}
	return true
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Repository interface {
	Service(ctx context.Context, id ServiceID) (*Service, error)
	Temple(ctx context.Context, id string) (*Temple, error)
	LodgingRoom(ctx context.Context, id string) (*LodgingRoom, error)
	Coupon(ctx context.Context, code string) (*Coupon, error)
}
