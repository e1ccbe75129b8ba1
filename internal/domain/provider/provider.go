package provider

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("provider: not found")
	ErrInvalidRating = errors.New("provider: rating must be between 1 and 5")
)

type ID string

type Category string

const (
	CategoryOfficiant  Category = "officiant"
	CategoryAstrologer Category = "astrologer"
	CategoryConsultant Category = "consultant"
)

// Profile is a ritual officiant or consultant who can be booked into slots.
type Profile struct {
	ID              ID
	Name            string
	Category        Category
	Verified        bool
	Visible         bool
	Locality        string
	Languages       []string
	Rating          float64
	ReviewCount     int
	ExperienceYears int
	// Capabilities are service categories the provider performs.
	Capabilities []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Can reports whether the provider performs the capability.
func (p *Profile) Can(capability string) bool {
	for _, c := range p.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}
	return false
}

// Eligible means verified, visible and capable. Slot availability is checked elsewhere.
func (p *Profile) Eligible(capability string) bool {
	return p != nil && p.Verified && p.Visible && p.Can(capability)
}

// ServesLocality compares localities case-insensitively.
func (p *Profile) ServesLocality(locality string) bool {
	return locality != "" && strings.EqualFold(strings.TrimSpace(p.Locality), strings.TrimSpace(locality))
}

// ApplyReview folds a new rating into the running average.
func (p *Profile) ApplyReview(rating int, now time.Time) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	total := p.Rating*float64(p.ReviewCount) + float64(rating)
	p.ReviewCount++
	p.Rating = math.Round(total/float64(p.ReviewCount)*100) / 100
	p.UpdatedAt = now.UTC()
	return nil
}

func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Languages = append([]string(nil), p.Languages...)
	clone.Capabilities = append([]string(nil), p.Capabilities...)
	return &clone
}

type Filter struct {
	Capability   string
	VerifiedOnly bool
	VisibleOnly  bool
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Profile, error)
	FindCandidates(ctx context.Context, filter Filter) ([]*Profile, error)
	Save(ctx context.Context, profile *Profile) error
}
