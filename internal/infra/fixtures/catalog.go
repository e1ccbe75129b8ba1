package fixtures

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	domaincatalog "divineconnect/internal/domain/catalog"
	domainprovider "divineconnect/internal/domain/provider"
)

// Catalog is the decoded fixture file: catalog entries plus the provider directory.
type Catalog struct {
	Services  []domaincatalog.Service
	Temples   []domaincatalog.Temple
	Rooms     []domaincatalog.LodgingRoom
	Coupons   []domaincatalog.Coupon
	Providers []*domainprovider.Profile
}

type fileFormat struct {
	Services  []serviceFixture  `json:"services"`
	Temples   []templeFixture   `json:"temples"`
	Rooms     []roomFixture     `json:"rooms"`
	Coupons   []couponFixture   `json:"coupons"`
	Providers []providerFixture `json:"providers"`
}

type serviceFixture struct {
	ID                 string           `json:"id"`
	Kind               string           `json:"kind"`
	Name               string           `json:"name"`
	Category           string           `json:"category"`
	RequiresProvider   bool             `json:"requires_provider"`
	DurationMinutes    int              `json:"duration_minutes"`
	Currency           string           `json:"currency"`
	Prices             map[string]int64 `json:"prices"`
	MaterialsSurcharge int64            `json:"materials_surcharge"`
	RecordingSurcharge int64            `json:"recording_surcharge"`
	Inactive           bool             `json:"inactive"`
}

type templeFixture struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

type roomFixture struct {
	ID          string `json:"id"`
	HotelName   string `json:"hotel_name"`
	City        string `json:"city"`
	NightlyRate int64  `json:"nightly_rate"`
	Capacity    int    `json:"capacity"`
}

type couponFixture struct {
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	Value      int64  `json:"value"`
	Inactive   bool   `json:"inactive"`
	ValidFrom  string `json:"valid_from"`
	ValidUntil string `json:"valid_until"`
}

type providerFixture struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Verified        bool     `json:"verified"`
	Hidden          bool     `json:"hidden"`
	Locality        string   `json:"locality"`
	Languages       []string `json:"languages"`
	Rating          float64  `json:"rating"`
	ReviewCount     int      `json:"review_count"`
	ExperienceYears int      `json:"experience_years"`
	Capabilities    []string `json:"capabilities"`
}

// Load reads path. A missing file yields an empty catalog and no error.
func Load(path string, now time.Time) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		return Catalog{}, nil
	}
	return Decode(data, now)
}

func Decode(data []byte, now time.Time) (Catalog, error) {
	var raw fileFormat
	if err := json.Unmarshal(data, &raw); err != nil {
		return Catalog{}, fmt.Errorf("decode fixtures: %w", err)
	}

	var out Catalog
	for _, fx := range raw.Services {
		base := make(map[domaincatalog.Mode]int64, len(fx.Prices))
		for mode, amount := range fx.Prices {
			m := domaincatalog.Mode(mode)
			if !m.Valid() {
				return Catalog{}, fmt.Errorf("service %s: unknown mode %q", fx.ID, mode)
			}
			base[m] = amount
		}
		out.Services = append(out.Services, domaincatalog.Service{
			ID:               domaincatalog.ServiceID(fx.ID),
			Kind:             domaincatalog.ServiceKind(fx.Kind),
			Name:             fx.Name,
			Category:         fx.Category,
			RequiresProvider: fx.RequiresProvider,
			DurationMinutes:  fx.DurationMinutes,
			Prices: domaincatalog.PriceList{
				Currency:           fx.Currency,
				Base:               base,
				MaterialsSurcharge: fx.MaterialsSurcharge,
				RecordingSurcharge: fx.RecordingSurcharge,
			},
			Active: !fx.Inactive,
		})
	}
	for _, fx := range raw.Temples {
		out.Temples = append(out.Temples, domaincatalog.Temple{ID: fx.ID, Name: fx.Name, City: fx.City})
	}
	for _, fx := range raw.Rooms {
		out.Rooms = append(out.Rooms, domaincatalog.LodgingRoom{
			ID:          fx.ID,
			HotelName:   fx.HotelName,
			City:        fx.City,
			NightlyRate: fx.NightlyRate,
			Capacity:    fx.Capacity,
		})
	}
	for _, fx := range raw.Coupons {
		out.Coupons = append(out.Coupons, domaincatalog.Coupon{
			Code:       domaincatalog.NormalizeCode(fx.Code),
			Kind:       domaincatalog.CouponKind(fx.Kind),
			Value:      fx.Value,
			Active:     !fx.Inactive,
			ValidFrom:  parseTime(fx.ValidFrom),
			ValidUntil: parseTime(fx.ValidUntil),
		})
	}
	for _, fx := range raw.Providers {
		out.Providers = append(out.Providers, &domainprovider.Profile{
			ID:              domainprovider.ID(fx.ID),
			Name:            fx.Name,
			Category:        domainprovider.Category(fx.Category),
			Verified:        fx.Verified,
			Visible:         !fx.Hidden,
			Locality:        fx.Locality,
			Languages:       append([]string(nil), fx.Languages...),
			Rating:          fx.Rating,
			ReviewCount:     fx.ReviewCount,
			ExperienceYears: fx.ExperienceYears,
			Capabilities:    append([]string(nil), fx.Capabilities...),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return out, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
