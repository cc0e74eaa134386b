package signing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/lifecycle"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/store"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"
)

// ProviderEvent is one decoded webhook delivery from the signing
// provider. SignerEmail is empty for request-scoped events.
type ProviderEvent struct {
	RequestID   string
	EventType   string
	SignerEmail string
	SignerName  string
	SignedAt    *time.Time
}

// eventKinds maps provider event type names to lifecycle events.
var eventKinds = map[string]lifecycle.Event{
	"document_viewed":    lifecycle.EventViewed,
	"document_signed":    lifecycle.EventSignerSigned,
	"document_completed": lifecycle.EventAllSigned,
	"document_declined":  lifecycle.EventDeclined,
	"document_expired":   lifecycle.EventExpired,
	"request_cancelled":  lifecycle.EventCancelled,
}

// HandleProviderEvent applies one webhook delivery to the owning
// document. Replayed deliveries and unknown event types are dropped
// without error so the provider's retry loop terminates.
func (s *Service) HandleProviderEvent(ctx context.Context, ev ProviderEvent) error {
	kind, known := eventKinds[ev.EventType]
	if !known {
		s.log.Info("ignoring unrecognized provider event", "eventType", ev.EventType, "requestId", ev.RequestID)
		return nil
	}

	doc, err := s.store.GetDocumentBySigningRequest(ctx, ev.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return ErrUnknownSigningRequest
		}
		return err
	}

	eventID := "evt_" + uuid.NewString()
	fresh, err := s.store.InsertWebhookEvent(ctx, eventID, ev.RequestID, ev.EventType, ev.SignerEmail)
	if err != nil {
		return err
	}
	if !fresh {
		s.log.Info("dropping replayed provider event", "eventType", ev.EventType, "requestId", ev.RequestID)
		return nil
	}

	if err := s.applyDelivery(ctx, doc, ev, kind); err != nil {
		// Release the receipt so the provider's redelivery is processed
		// instead of being dropped as a replay.
		if delErr := s.store.DeleteWebhookEvent(ctx, eventID); delErr != nil {
			s.log.Error("failed to release webhook event receipt", "eventId", eventID, "error", delErr)
		}
		return err
	}
	return nil
}

// applyDelivery performs the side effects of one fresh delivery. Every
// step is idempotent, so a redelivery after a partial failure converges
// on the same end state.
func (s *Service) applyDelivery(ctx context.Context, doc domain.Document, ev ProviderEvent, kind lifecycle.Event) error {
	if ev.SignerEmail != "" {
		rec := domain.SignerStatus{
			SignerEmail: ev.SignerEmail,
			SignerName:  ev.SignerName,
			StatusCode:  signerCodeFor(kind),
			SignedAt:    ev.SignedAt,
		}
		if rec.StatusCode != "" {
			if err := s.store.UpsertSignerStatus(ctx, doc.ID, rec); err != nil {
				return err
			}
		}
	}
	if kind == lifecycle.EventCancelled {
		// A provider-side cancellation closes the request the same way a
		// local cancel does: detach it and drop the per-signer rows.
		return s.store.ClearSigningRequest(ctx, doc.ID)
	}
	return s.applyEvent(ctx, doc, kind)
}

// signerCodeFor gives the per-signer record for a signer-scoped event.
// Request-scoped kinds return "" and leave signer rows alone.
func signerCodeFor(kind lifecycle.Event) string {
	switch kind {
	case lifecycle.EventSignerSigned, lifecycle.EventAllSigned:
		return domain.SignerSigned
	case lifecycle.EventDeclined:
		return domain.SignerDeclined
	default:
		return ""
	}
}

// applyEvent advances the document status for one lifecycle event under
// compare-and-set. Events that are invalid for the current status are
// logged and ignored rather than failed, since out-of-order delivery is
// expected.
func (s *Service) applyEvent(ctx context.Context, doc domain.Document, kind lifecycle.Event) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		next, ok := lifecycle.Next(doc.SignatureStatus, kind)
		if !ok {
			s.log.Info("event does not apply to current status",
				"documentId", doc.ID, "event", string(kind), "status", string(doc.SignatureStatus))
			return nil
		}
		if next == doc.SignatureStatus {
			return nil
		}
		applied, err := s.store.UpdateStatusCAS(ctx, doc.ID, doc.SignatureStatus, next)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		doc, err = s.store.GetDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
	}
	return errors.New("status update for " + doc.ID + " did not settle")
}
