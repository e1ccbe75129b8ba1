package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/provider"
)

const issueCertificateKey = "booking.issue_certificate"

type IssueCertificateCommand struct {
	BookingID string `validate:"required"`
	Actor     policies.Actor
}

func (c IssueCertificateCommand) Key() string { return issueCertificateKey }

func (c IssueCertificateCommand) ActorID() string { return c.Actor.ID }

type IssueCertificateHandler struct {
	Orchestrator *Orchestrator
}

func (h *IssueCertificateHandler) Handle(ctx context.Context, cmd IssueCertificateCommand) (dto.Certificate, error) {
	return h.Orchestrator.IssueCertificate(ctx, cmd.BookingID, cmd.Actor)
}

func certificateNumber(b *domainbooking.Booking) string {
	id := strings.ToUpper(strings.ReplaceAll(string(b.ID), "-", ""))
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("DC-%s-%s", strings.ReplaceAll(b.Date, "-", ""), id)
}

// IssueCertificate produces the completion certificate of a finished booking. Issuing again
// returns the same certificate.
func (o *Orchestrator) IssueCertificate(ctx context.Context, id string, actor policies.Actor) (dto.Certificate, error) {
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{})
	if err != nil {
		return dto.Certificate{}, apperr.Persistence(err)
	}
	defer m.Close()

	b, err := o.load(m.Ctx, m.Unit, id)
	if err != nil {
		return dto.Certificate{}, err
	}
	if err := authorizeOwner(actor, b); err != nil {
		return dto.Certificate{}, err
	}
	firstIssue := b.CertificateNo == ""
	if err := b.IssueCertificate(certificateNumber(b), o.now()); err != nil {
		return dto.Certificate{}, apperr.From(err)
	}
	if firstIssue {
		if err := o.save(m, b); err != nil {
			return dto.Certificate{}, err
		}
		o.notify(ctx, policies.NotifyCertificateReady, b.ID)
	}

	out := dto.Certificate{
		Number:      b.CertificateNo,
		BookingID:   string(b.ID),
		Date:        b.Date,
		Slot:        b.Slot,
		CompletedAt: b.CompletedAt,
	}
	if svc, err := m.Unit.Catalog().Service(m.Ctx, b.ServiceID); err == nil {
		out.ServiceName = svc.Name
	}
	if b.ProviderID != "" {
		if p, err := m.Unit.Providers().ByID(m.Ctx, provider.ID(b.ProviderID)); err == nil {
			out.ProviderName = p.Name
		}
	}
	for _, p := range b.Request.Participants {
		out.Participants = append(out.Participants, dto.Participant{Name: p.Name, Gotra: p.Gotra, Nakshatra: p.Nakshatra})
	}
	out.DocumentURL = o.archive(ctx, out)
	return out, nil
}

// archive stores the certificate document; a failure leaves the certificate without a URL.
func (o *Orchestrator) archive(ctx context.Context, cert dto.Certificate) string {
	if o.Archive == nil {
		return ""
	}
	doc, err := json.Marshal(cert)
	if err != nil {
		o.logger().Error("encode certificate", "booking_id", cert.BookingID, "error", err)
		return ""
	}
	url, err := o.Archive.Put(ctx, "certificates/"+cert.Number+".json", doc)
	if err != nil {
		o.logger().Warn("archive certificate failed", "booking_id", cert.BookingID, "number", cert.Number, "error", err)
		return ""
	}
	return url
}

var _ commands.Handler[IssueCertificateCommand, dto.Certificate] = (*IssueCertificateHandler)(nil)
