package availability

import (
	"context"
	"errors"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/queries"
	"divineconnect/internal/app/uow"
	domainavailability "divineconnect/internal/domain/availability"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/slots"
)

const (
	listCandidatesKey = "availability.candidates"
	checkSlotKey      = "availability.slot"
)

// ListCandidatesQuery lists providers who could take a service at a slot.
type ListCandidatesQuery struct {
	ServiceID string `validate:"required"`
	Date      string `validate:"required,datetime=2006-01-02"`
	Slot      string `validate:"required"`
	Locality  string
}

func (q ListCandidatesQuery) Key() string { return listCandidatesKey }

type ListCandidatesHandler struct {
	UoWFactory uow.UoWFactory
	Index      *domainavailability.Index
}

func (h *ListCandidatesHandler) Handle(ctx context.Context, q ListCandidatesQuery) (dto.ProviderCollection, error) {
	label, err := slots.NormalizeLabel(q.Slot)
	if err != nil {
		return dto.ProviderCollection{}, apperr.From(domainbooking.Invalid("slot", "must look like 6:00 AM"))
	}
	m, err := uow.Begin(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return dto.ProviderCollection{}, apperr.Persistence(err)
	}
	defer m.Close()

	svc, err := m.Unit.Catalog().Service(m.Ctx, catalog.ServiceID(q.ServiceID))
	if err != nil {
		return dto.ProviderCollection{}, apperr.From(err)
	}
	if !svc.RequiresProvider {
		return dto.ProviderCollection{Items: []dto.Provider{}}, nil
	}
	list, err := h.Index.ListCandidates(m.Ctx, domainavailability.CandidateQuery{
		Capability: svc.Category,
		Locality:   q.Locality,
		Date:       q.Date,
		Slot:       label,
	})
	if err != nil {
		return dto.ProviderCollection{}, apperr.Persistence(err)
	}
	return dto.MapProviders(list), nil
}

// CheckSlotQuery asks whether a provider slot or a lodging night has room left.
type CheckSlotQuery struct {
	Kind       string `validate:"required,oneof=provider capacity"`
	ResourceID string `validate:"required"`
	Date       string `validate:"required,datetime=2006-01-02"`
	Slot       string
}

func (q CheckSlotQuery) Key() string { return checkSlotKey }

type SlotStatus struct {
	Key  string `json:"key"`
	Free bool   `json:"free"`
}

type CheckSlotHandler struct {
	Index *domainavailability.Index
}

func (h *CheckSlotHandler) Handle(ctx context.Context, q CheckSlotQuery) (SlotStatus, error) {
	var key slots.Key
	if slots.Kind(q.Kind) == slots.KindProvider {
		label, err := slots.NormalizeLabel(q.Slot)
		if err != nil {
			return SlotStatus{}, apperr.From(domainbooking.Invalid("slot", "must look like 6:00 AM"))
		}
		key = slots.ProviderKey(q.ResourceID, q.Date, label)
	} else {
		key = slots.CapacityKey(q.ResourceID, q.Date)
	}
	free, err := h.Index.IsFree(ctx, key)
	if err != nil {
		if errors.Is(err, domainavailability.ErrUnknownCapacity) {
			return SlotStatus{}, apperr.New(apperr.CodeNotFound, "unknown resource", err)
		}
		return SlotStatus{}, apperr.Persistence(err)
	}
	return SlotStatus{Key: key.String(), Free: free}, nil
}

var _ queries.Handler[ListCandidatesQuery, dto.ProviderCollection] = (*ListCandidatesHandler)(nil)
var _ queries.Handler[CheckSlotQuery, SlotStatus] = (*CheckSlotHandler)(nil)
