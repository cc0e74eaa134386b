// Package signing orchestrates the document-to-signable-artifact
// pipeline: it renders the artifact, submits it to the signing
// provider, and reconciles lifecycle status from the two racing status
// sources (provider webhooks and on-demand polls).
package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/archive"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/esign"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/layout"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/lifecycle"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/sanitize"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/textgen"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"
)

var (
	// ErrDuplicateSigningRequest rejects a create while a request is
	// already attached, before any provider call is made.
	ErrDuplicateSigningRequest = errors.New("a signing request is already attached to this document")
	ErrNoSigners               = errors.New("document has no signers")
	ErrNoOpenRequest           = errors.New("document has no open signing request")
	ErrUnknownSigningRequest   = errors.New("unknown signing request")
)

// casAttempts bounds the compare-and-set retry loop; contention on a
// single document is at most one webhook racing one poll.
const casAttempts = 5

type Store interface {
	CreateDocument(ctx context.Context, d domain.Document) error
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	GetDocumentBySigningRequest(ctx context.Context, requestID string) (domain.Document, error)
	AttachSigningRequest(ctx context.Context, documentID, requestID string) (bool, error)
	UpdateStatusCAS(ctx context.Context, documentID string, from, to domain.SignatureStatus) (bool, error)
	ClearSigningRequest(ctx context.Context, documentID string) error
	UpsertSignerStatus(ctx context.Context, documentID string, st domain.SignerStatus) error
	ListSignerStatuses(ctx context.Context, documentID string) ([]domain.SignerStatus, error)
	LoadSigners(ctx context.Context, documentID string) ([]domain.Signer, error)
	InsertWebhookEvent(ctx context.Context, eventID, requestID, eventType, signerEmail string) (bool, error)
	DeleteWebhookEvent(ctx context.Context, eventID string) error
}

type Provider interface {
	Create(ctx context.Context, req esign.CreateRequest) (esign.CreateResponse, error)
	Status(ctx context.Context, requestID string) (esign.StatusResponse, error)
	Cancel(ctx context.Context, requestID string) error
	Remind(ctx context.Context, requestID, signerEmail string) error
}

type Renderer interface {
	Render(pages []layout.Page) ([]byte, error)
}

type Config struct {
	Store     Store
	Provider  Provider
	Engine    *layout.Engine
	Renderer  Renderer
	Generator textgen.Generator // optional; CreateDocument fails without it
	Archive   archive.Store     // optional
	Logger    *slog.Logger      // optional
	TestMode  bool
}

type Service struct {
	store     Store
	provider  Provider
	engine    *layout.Engine
	renderer  Renderer
	generator textgen.Generator
	archive   archive.Store
	log       *slog.Logger
	testMode  bool
}

func New(cfg Config) *Service {
	if cfg.Archive == nil {
		cfg.Archive = archive.Disabled{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:     cfg.Store,
		provider:  cfg.Provider,
		engine:    cfg.Engine,
		renderer:  cfg.Renderer,
		generator: cfg.Generator,
		archive:   cfg.Archive,
		log:       cfg.Logger,
		testMode:  cfg.TestMode,
	}
}

// CreateDocument generates document text for the prompt and persists a
// new document with no signing request attached.
func (s *Service) CreateDocument(ctx context.Context, landlordID, prompt string) (domain.Document, error) {
	if s.generator == nil {
		return domain.Document{}, errors.New("document text generator is not configured")
	}
	title, body, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return domain.Document{}, err
	}
	doc := domain.Document{
		ID:              "doc_" + uuid.NewString(),
		LandlordID:      landlordID,
		Title:           sanitize.Sanitize(title, sanitize.FromPlain),
		Body:            sanitize.Sanitize(body, sanitize.FromMarkup),
		SignatureStatus: domain.SignatureNone,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

type SendOptions struct {
	Subject string
	Message string
}

// SendForSignature renders the document, submits it to the provider
// with computed field coordinates and attaches the resulting request.
func (s *Service) SendForSignature(ctx context.Context, documentID string, opts SendOptions) (string, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc.SigningRequestID != nil {
		return "", ErrDuplicateSigningRequest
	}
	signers, err := s.store.LoadSigners(ctx, documentID)
	if err != nil {
		return "", err
	}
	if len(signers) == 0 {
		return "", ErrNoSigners
	}

	artifact, placement, err := s.render(doc, signers)
	if err != nil {
		return "", err
	}

	req := esign.CreateRequest{
		Title:    doc.Title,
		FileB64:  base64.StdEncoding.EncodeToString(artifact),
		Subject:  opts.Subject,
		Message:  opts.Message,
		TestMode: s.testMode,
	}
	for _, sg := range signers {
		req.Signers = append(req.Signers, esign.Signer{Name: sg.Name, Email: sg.Email, Order: sg.Order})
	}
	for _, f := range placement.Fields {
		// Layout pages are zero-indexed; the provider counts from 1.
		req.Fields = append(req.Fields, esign.Field{SignerEmail: f.Email, Page: f.Page + 1, X: f.X, Y: f.Y})
	}

	var created esign.CreateResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Archival is best-effort; losing the copy must not fail the send.
		if err := s.archive.Put(gctx, "documents/"+doc.ID+".pdf", artifact); err != nil {
			s.log.Warn("artifact archive failed", "documentId", doc.ID, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		created, err = s.provider.Create(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	attached, err := s.store.AttachSigningRequest(ctx, doc.ID, created.RequestID)
	if err != nil {
		return "", err
	}
	if !attached {
		// A concurrent send won the race; withdraw ours.
		if err := s.provider.Cancel(ctx, created.RequestID); err != nil {
			s.log.Warn("failed to withdraw losing signing request", "requestId", created.RequestID, "error", err)
		}
		return "", ErrDuplicateSigningRequest
	}

	for _, sg := range signers {
		st := domain.SignerStatus{SignerEmail: sg.Email, SignerName: sg.Name, StatusCode: domain.SignerAwaiting}
		if err := s.store.UpsertSignerStatus(ctx, doc.ID, st); err != nil {
			return "", err
		}
	}
	return created.RequestID, nil
}

// render runs the sanitize -> layout -> signature block -> PDF pipeline.
func (s *Service) render(doc domain.Document, signers []domain.Signer) ([]byte, layout.Placement, error) {
	title := sanitize.Sanitize(doc.Title, sanitize.FromPlain)
	body := sanitize.Sanitize(doc.Body, sanitize.FromMarkup)

	pages, err := s.engine.Layout(title, body)
	if err != nil {
		return nil, layout.Placement{}, fmt.Errorf("layout %s: %w", doc.ID, err)
	}
	pages, placement, err := s.engine.PlaceSignatureBlock(pages, signers)
	if err != nil {
		return nil, layout.Placement{}, fmt.Errorf("place signature block %s: %w", doc.ID, err)
	}
	artifact, err := s.renderer.Render(pages)
	if err != nil {
		return nil, layout.Placement{}, fmt.Errorf("render %s: %w", doc.ID, err)
	}
	return artifact, placement, nil
}

// Poll fetches provider state on demand and reconciles it into the
// document record. It never downgrades an already-more-advanced status.
func (s *Service) Poll(ctx context.Context, documentID string) (domain.Document, []domain.SignerStatus, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, nil, err
	}
	if doc.SigningRequestID == nil {
		statuses, err := s.store.ListSignerStatuses(ctx, documentID)
		return doc, statuses, err
	}

	st, err := s.provider.Status(ctx, *doc.SigningRequestID)
	if err != nil {
		return domain.Document{}, nil, err
	}

	proposed, ok := deriveStatus(st)
	if ok && proposed == domain.SignatureCancelled {
		// The provider reports the request withdrawn; close it out the
		// same way a local cancel does.
		if err := s.store.ClearSigningRequest(ctx, documentID); err != nil {
			return domain.Document{}, nil, err
		}
		doc, err = s.store.GetDocument(ctx, documentID)
		if err != nil {
			return domain.Document{}, nil, err
		}
		statuses, err := s.store.ListSignerStatuses(ctx, documentID)
		return doc, statuses, err
	}

	for _, sg := range st.Signers {
		rec := domain.SignerStatus{
			SignerEmail: sg.Email,
			SignerName:  sg.Name,
			StatusCode:  sg.State,
			SignedAt:    sg.SignedAt,
		}
		if err := s.store.UpsertSignerStatus(ctx, documentID, rec); err != nil {
			return domain.Document{}, nil, err
		}
	}

	if ok {
		doc, err = s.applyProposed(ctx, doc, proposed)
		if err != nil {
			return domain.Document{}, nil, err
		}
	}

	statuses, err := s.store.ListSignerStatuses(ctx, documentID)
	return doc, statuses, err
}

// deriveStatus maps a provider status payload to a coarse lifecycle
// judgement. ok=false leaves the cached status untouched.
func deriveStatus(st esign.StatusResponse) (domain.SignatureStatus, bool) {
	switch st.State {
	case "completed":
		return domain.SignatureCompleted, true
	case "declined":
		return domain.SignatureDeclined, true
	case "expired":
		return domain.SignatureExpired, true
	case "cancelled":
		return domain.SignatureCancelled, true
	case "viewed":
		return domain.SignatureViewed, true
	}
	signed := 0
	for _, sg := range st.Signers {
		if sg.State == domain.SignerSigned {
			signed++
		}
	}
	if len(st.Signers) > 0 && signed == len(st.Signers) {
		return domain.SignatureCompleted, true
	}
	if signed > 0 {
		return domain.SignaturePartiallySigned, true
	}
	return "", false
}

// applyProposed writes a directly proposed status under compare-and-set
// so a racing webhook delivery cannot be lost to a stale read.
func (s *Service) applyProposed(ctx context.Context, doc domain.Document, proposed domain.SignatureStatus) (domain.Document, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		next := lifecycle.Apply(doc.SignatureStatus, proposed)
		if next == doc.SignatureStatus {
			return doc, nil
		}
		ok, err := s.store.UpdateStatusCAS(ctx, doc.ID, doc.SignatureStatus, next)
		if err != nil {
			return domain.Document{}, err
		}
		if ok {
			doc.SignatureStatus = next
			return doc, nil
		}
		doc, err = s.store.GetDocument(ctx, doc.ID)
		if err != nil {
			return domain.Document{}, err
		}
	}
	return doc, fmt.Errorf("status update for %s did not settle", doc.ID)
}

// Cancel withdraws the open signing request. Cancelling a document with
// no open request is a no-op, not an error.
func (s *Service) Cancel(ctx context.Context, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.SigningRequestID == nil {
		return nil
	}
	if err := s.provider.Cancel(ctx, *doc.SigningRequestID); err != nil {
		return err
	}
	return s.store.ClearSigningRequest(ctx, documentID)
}

// Remind nudges one signer. Failures surface to the caller but do not
// affect the document workflow.
func (s *Service) Remind(ctx context.Context, documentID, signerEmail string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.SigningRequestID == nil {
		return ErrNoOpenRequest
	}
	return s.provider.Remind(ctx, *doc.SigningRequestID, signerEmail)
}
