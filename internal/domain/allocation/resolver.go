package allocation

import (
	"context"
	"errors"
	"sort"
	"time"

	"divineconnect/internal/domain/availability"
	"divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/provider"
	"divineconnect/internal/domain/slots"
)

// ErrManualUnavailable is returned to callers when an explicitly chosen provider cannot take the slot.
var ErrManualUnavailable = errors.New("allocation: selected provider is not available for this slot")

type Outcome string

const (
	OutcomeAssigned          Outcome = "ASSIGNED"
	OutcomeManualUnavailable Outcome = "MANUAL_UNAVAILABLE"
	OutcomePendingManual     Outcome = "PENDING_MANUAL_ASSIGNMENT"
	OutcomeNotRequired       Outcome = "NOT_REQUIRED"
)

// Booking maps the outcome onto what the booking records.
func (o Outcome) Booking() booking.Allocation {
	switch o {
	case OutcomeAssigned:
		return booking.AllocationAssigned
	case OutcomeNotRequired:
		return booking.AllocationNotRequired
	default:
		return booking.AllocationPendingManual
	}
}

type Request struct {
	Capability       string
	RequiresProvider bool
	ProviderID       string
	Locality         string
	Date             string
	Slot             string
}

type Result struct {
	Outcome  Outcome
	Provider *provider.Profile
	AssignBy time.Time
}

// Candidates is the part of the availability index the resolver reads.
type Candidates interface {
	ListCandidates(ctx context.Context, q availability.CandidateQuery) ([]*provider.Profile, error)
	IsCandidate(ctx context.Context, p *provider.Profile, capability, date, slot string) (bool, error)
}

type Resolver struct {
	Candidates Candidates
	Providers  provider.Repository
	// AssignmentLead is how long before the slot a deferred assignment must be made.
	AssignmentLead time.Duration
	Location       *time.Location
}

// DefaultAssignmentLead is the deadline for operators to fill a deferred assignment.
const DefaultAssignmentLead = 24 * time.Hour

func NewResolver(candidates Candidates, providers provider.Repository, lead time.Duration, loc *time.Location) *Resolver {
	if lead <= 0 {
		lead = DefaultAssignmentLead
	}
	if loc == nil {
		loc = slots.DefaultLocation
	}
	return &Resolver{Candidates: candidates, Providers: providers, AssignmentLead: lead, Location: loc}
}

// Resolve picks the provider for a request. It never reserves anything.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	if !req.RequiresProvider {
		return Result{Outcome: OutcomeNotRequired}, nil
	}
	if req.ProviderID != "" {
		return r.resolveManual(ctx, req)
	}
	list, err := r.Candidates.ListCandidates(ctx, availability.CandidateQuery{
		Capability: req.Capability,
		Locality:   req.Locality,
		Date:       req.Date,
		Slot:       req.Slot,
	})
	if err != nil {
		return Result{}, err
	}
	if len(list) == 0 {
		deadline, err := r.assignBy(req)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomePendingManual, AssignBy: deadline}, nil
	}
	return Result{Outcome: OutcomeAssigned, Provider: Rank(list)[0]}, nil
}

func (r *Resolver) resolveManual(ctx context.Context, req Request) (Result, error) {
	p, err := r.Providers.ByID(ctx, provider.ID(req.ProviderID))
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return Result{Outcome: OutcomeManualUnavailable}, nil
		}
		return Result{}, err
	}
	ok, err := r.Candidates.IsCandidate(ctx, p, req.Capability, req.Date, req.Slot)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Outcome: OutcomeManualUnavailable}, nil
	}
	return Result{Outcome: OutcomeAssigned, Provider: p}, nil
}

func (r *Resolver) assignBy(req Request) (time.Time, error) {
	start, err := slots.Start(req.Date, req.Slot, r.Location)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(-r.AssignmentLead).UTC(), nil
}

// Rank orders providers by rating, then experience, then id. The input is not modified.
func Rank(list []*provider.Profile) []*provider.Profile {
	out := append([]*provider.Profile(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.ExperienceYears != b.ExperienceYears {
			return a.ExperienceYears > b.ExperienceYears
		}
		return a.ID < b.ID
	})
	return out
}
