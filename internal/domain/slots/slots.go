package slots

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDate  = errors.New("slots: date must be YYYY-MM-DD")
	ErrInvalidLabel = errors.New("slots: slot label must look like 6:00 AM")
	ErrInvalidKey   = errors.New("slots: invalid resource key")
)

// DateLayout is the calendar day format used in requests and keys.
const DateLayout = "2006-01-02"

const labelLayout = "3:04 PM"

var labelLayouts = []string{"3:04 PM", "3:04PM", "03:04 PM", "15:04"}

// DefaultLocation is the zone slot labels are interpreted in.
var DefaultLocation = time.FixedZone("IST", 5*3600+30*60)

type Kind string

const (
	KindProvider Kind = "provider"
	KindCapacity Kind = "capacity"
)

// Key identifies one schedulable unit: a provider's slot or a capacity resource's day.
type Key struct {
	Kind       Kind
	ResourceID string
	Date       string
	Slot       string
}

// ProviderKey is exclusive: one booking per provider, date and slot.
func ProviderKey(providerID, date, slot string) Key {
	return Key{Kind: KindProvider, ResourceID: providerID, Date: date, Slot: slot}
}

// CapacityKey covers a whole day of a capacity-bound resource such as a lodging room type.
func CapacityKey(resourceID, date string) Key {
	return Key{Kind: KindCapacity, ResourceID: resourceID, Date: date}
}

func (k Key) String() string {
	if k.Kind == KindCapacity {
		return fmt.Sprintf("%s:%s:%s", k.Kind, k.ResourceID, k.Date)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.ResourceID, k.Date, k.Slot)
}

func (k Key) Validate() error {
	if k.ResourceID == "" {
		return fmt.Errorf("%w: resource id required", ErrInvalidKey)
	}
	if _, err := ParseDate(k.Date); err != nil {
		return err
	}
	switch k.Kind {
	case KindProvider:
		if k.Slot == "" {
			return fmt.Errorf("%w: provider key needs a slot", ErrInvalidKey)
		}
	case KindCapacity:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, k.Kind)
	}
	return nil
}

// Exclusive reports whether at most one unit may ever be held on the key.
func (k Key) Exclusive() bool {
	return k.Kind == KindProvider
}

func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// NormalizeLabel returns the canonical spelling of a slot label so equal slots share a key.
func NormalizeLabel(label string) (string, error) {
	t, err := parseLabel(label)
	if err != nil {
		return "", err
	}
	return t.Format(labelLayout), nil
}

// Start resolves the instant a slot begins in loc.
func Start(date, label string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := parseLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = DefaultLocation
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// Nights lists the dates of n consecutive nights starting at checkIn.
func Nights(checkIn string, n int) ([]string, error) {
	day, err := ParseDate(checkIn)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, day.AddDate(0, 0, i).Format(DateLayout))
	}
	return out, nil
}

func parseLabel(label string) (time.Time, error) {
	value := strings.ToUpper(strings.TrimSpace(label))
	for _, layout := range labelLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidLabel
}
