package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/slots"
)

var ErrValidation = errors.New("booking: invalid request")

// FieldError names one rejected request field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every rejected field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "booking: invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-field validation error.
func Invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

type Participant struct {
	Name      string
	Gotra     string
	Nakshatra string
}

type LodgingSelection struct {
	RoomID string
	Nights int
	Rooms  int
}

// Request is what a devotee asks for. It is kept on the booking so the price can be
// recomputed later.
type Request struct {
	UserID           string
	ServiceID        catalog.ServiceID
	Mode             catalog.Mode
	Date             string
	Slot             string
	ParticipantCount int
	Participants     []Participant
	Materials        catalog.Materials
	Recording        bool
	Manual           bool
	ProviderID       string
	CouponCode       string
	Lodging          *LodgingSelection
	TempleID         string
	Address          string
	Locality         string
	ContactPhone     string
	Notes            string
}

// Normalize trims free text and canonicalises slot labels and coupon codes.
func (r Request) Normalize() Request {
	r.UserID = strings.TrimSpace(r.UserID)
	r.ServiceID = catalog.ServiceID(strings.TrimSpace(string(r.ServiceID)))
	r.Date = strings.TrimSpace(r.Date)
	if label, err := slots.NormalizeLabel(r.Slot); err == nil {
		r.Slot = label
	}
	r.ProviderID = strings.TrimSpace(r.ProviderID)
	r.CouponCode = catalog.NormalizeCode(r.CouponCode)
	r.TempleID = strings.TrimSpace(r.TempleID)
	r.Address = strings.TrimSpace(r.Address)
	r.Locality = strings.TrimSpace(r.Locality)
	if r.Materials == "" {
		r.Materials = catalog.MaterialsSelf
	}
	if r.ProviderID != "" {
		r.Manual = true
	}
	participants := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		participants = append(participants, p)
	}
	r.Participants = participants
	if r.Lodging != nil {
		lodging := *r.Lodging
		lodging.RoomID = strings.TrimSpace(lodging.RoomID)
		r.Lodging = &lodging
	}
	return r
}

// Validate checks the request against mode rules. Slots that already started are rejected.
func (r Request) Validate(now time.Time, loc *time.Location) error {
	verr := &ValidationError{}
	if r.UserID == "" {
		verr.add("user_id", "required")
	}
	if r.ServiceID == "" {
		verr.add("service_id", "required")
	}
	if !r.Mode.Valid() {
		verr.add("mode", "unknown mode %q", r.Mode)
	}
	if r.ParticipantCount < 1 {
		verr.add("participant_count", "must be at least 1")
	} else if len(r.Participants) > r.ParticipantCount {
		verr.add("participants", "more names than participant_count")
	}
	if r.Materials != "" && !r.Materials.Valid() {
		verr.add("materials", "unknown option %q", r.Materials)
	}

	if start, err := slots.Start(r.Date, r.Slot, loc); err != nil {
		if errors.Is(err, slots.ErrInvalidDate) {
			verr.add("date", "must be YYYY-MM-DD")
		} else {
			verr.add("slot", "must look like 6:00 AM")
		}
	} else if start.Before(now) {
		verr.add("date", "slot is in the past")
	}

	switch r.Mode {
	case catalog.ModeAtHome:
		if r.Address == "" {
			verr.add("address", "required for at-home services")
		}
		if r.Locality == "" {
			verr.add("locality", "required for at-home services")
		}
	case catalog.ModeAtTemple:
		if r.TempleID == "" {
			verr.add("temple_id", "required for at-temple services")
		}
	case catalog.ModeVirtualOnBehalf:
		if len(r.Participants) == 0 {
			verr.add("participants", "at least one name is required for the sankalp")
		}
	case catalog.ModeVirtualLive:
		if r.ContactPhone == "" {
			verr.add("contact_phone", "required to share the session link")
		}
	}

	if r.Manual && r.ProviderID == "" {
		verr.add("provider_id", "required for manual selection")
	}
	if r.Lodging != nil {
		if r.Lodging.RoomID == "" {
			verr.add("lodging.room_id", "required")
		}
		if r.Lodging.Nights < 1 {
			verr.add("lodging.nights", "must be at least 1")
		}
		if r.Lodging.Rooms < 1 {
			verr.add("lodging.rooms", "must be at least 1")
		}
	}
	return verr.orNil()
}

func (r Request) Clone() Request {
	clone := r
	clone.Participants = append([]Participant(nil), r.Participants...)
	if r.Lodging != nil {
		lodging := *r.Lodging
		clone.Lodging = &lodging
	}
	return clone
}
