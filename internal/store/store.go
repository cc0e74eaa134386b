// Package store persists documents, per-signer status records and
// webhook event receipts in Postgres. Status writes go through a
// compare-and-set so racing webhook and poll updates cannot lose the
// monotonicity guarantee.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"
)

var ErrDocumentNotFound = errors.New("document not found")

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) CreateDocument(ctx context.Context, d domain.Document) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO documents(document_id,landlord_id,title,body,signature_status)
VALUES($1,$2,$3,$4,$5)
`, d.ID, d.LandlordID, d.Title, d.Body, string(d.SignatureStatus))
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return s.getDocument(ctx, `WHERE document_id=$1`, id)
}

// GetDocumentBySigningRequest resolves a provider request id back to
// the owning document; the webhook path has nothing else to go on.
func (s *Store) GetDocumentBySigningRequest(ctx context.Context, requestID string) (domain.Document, error) {
	return s.getDocument(ctx, `WHERE signing_request_id=$1`, requestID)
}

func (s *Store) getDocument(ctx context.Context, where, arg string) (domain.Document, error) {
	var d domain.Document
	var status string
	err := s.DB.QueryRow(ctx, `
SELECT document_id,landlord_id,title,body,signing_request_id,signature_status,created_at,updated_at
FROM documents `+where, arg).
		Scan(&d.ID, &d.LandlordID, &d.Title, &d.Body, &d.SigningRequestID, &status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, ErrDocumentNotFound
		}
		return domain.Document{}, err
	}
	d.SignatureStatus = domain.SignatureStatus(status)
	return d, nil
}

// AttachSigningRequest sets the request id and moves the document to
// pending, but only while no request is attached. The row predicate is
// what enforces the one-open-request invariant under concurrency.
func (s *Store) AttachSigningRequest(ctx context.Context, documentID, requestID string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE documents
SET signing_request_id=$2, signature_status=$3, updated_at=now()
WHERE document_id=$1 AND signing_request_id IS NULL
`, documentID, requestID, string(domain.SignaturePending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatusCAS writes the new status only if the current value still
// matches; callers loop on false after re-reading.
func (s *Store) UpdateStatusCAS(ctx context.Context, documentID string, from, to domain.SignatureStatus) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE documents
SET signature_status=$3, updated_at=now()
WHERE document_id=$1 AND signature_status=$2
`, documentID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClearSigningRequest is the cancel path: null the request id, mark the
// document cancelled and discard the cached signer statuses, which are
// scoped to the request that just went away.
func (s *Store) ClearSigningRequest(ctx context.Context, documentID string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
UPDATE documents
SET signing_request_id=NULL, signature_status=$2, updated_at=now()
WHERE document_id=$1
`, documentID, string(domain.SignatureCancelled))
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM signer_statuses WHERE document_id=$1`, documentID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertSignerStatus records per-signer detail from a poll or webhook.
// A signed record is never demoted back to awaiting and the first
// signed_at timestamp sticks.
func (s *Store) UpsertSignerStatus(ctx context.Context, documentID string, st domain.SignerStatus) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO signer_statuses(document_id,signer_email,signer_name,status_code,signed_at,updated_at)
VALUES($1,$2,$3,$4,$5,now())
ON CONFLICT (document_id,signer_email) DO UPDATE SET
  signer_name=EXCLUDED.signer_name,
  status_code=CASE
    WHEN signer_statuses.status_code='signed' AND EXCLUDED.status_code='awaiting'
    THEN signer_statuses.status_code
    ELSE EXCLUDED.status_code
  END,
  signed_at=COALESCE(signer_statuses.signed_at, EXCLUDED.signed_at),
  updated_at=now()
`, documentID, st.SignerEmail, st.SignerName, st.StatusCode, st.SignedAt)
	return err
}

func (s *Store) ListSignerStatuses(ctx context.Context, documentID string) ([]domain.SignerStatus, error) {
	rows, err := s.DB.Query(ctx, `
SELECT signer_email,signer_name,status_code,signed_at
FROM signer_statuses WHERE document_id=$1 ORDER BY signer_email
`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SignerStatus
	for rows.Next() {
		var st domain.SignerStatus
		if err := rows.Scan(&st.SignerEmail, &st.SignerName, &st.StatusCode, &st.SignedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ReplaceSigners swaps the full signing party list for a document.
// Signers are only editable before a request is sent, so a wholesale
// replace is simpler than diffing.
func (s *Store) ReplaceSigners(ctx context.Context, documentID string, signers []domain.Signer) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_signers WHERE document_id=$1`, documentID); err != nil {
		return err
	}
	for _, sg := range signers {
		_, err := tx.Exec(ctx, `
INSERT INTO document_signers(document_id,name,email,role,sign_order)
VALUES($1,$2,$3,$4,$5)
`, documentID, sg.Name, sg.Email, string(sg.Role), sg.Order)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// LoadSigners reads the signing parties derived from the document's
// property and tenant records; the CRUD side of the product maintains
// them.
func (s *Store) LoadSigners(ctx context.Context, documentID string) ([]domain.Signer, error) {
	rows, err := s.DB.Query(ctx, `
SELECT name,email,role,sign_order
FROM document_signers WHERE document_id=$1 ORDER BY sign_order
`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Signer
	for rows.Next() {
		var sg domain.Signer
		var role string
		if err := rows.Scan(&sg.Name, &sg.Email, &role, &sg.Order); err != nil {
			return nil, err
		}
		sg.Role = domain.SignerRole(role)
		out = append(out, sg)
	}
	return out, rows.Err()
}

// InsertWebhookEvent dedupes at-least-once deliveries on the event's
// natural key. inserted=false means this delivery is a replay.
func (s *Store) InsertWebhookEvent(ctx context.Context, eventID, requestID, eventType, signerEmail string) (inserted bool, err error) {
	var id string
	err = s.DB.QueryRow(ctx, `
INSERT INTO webhook_events(event_id,signing_request_id,event_type,signer_email)
VALUES($1,$2,$3,$4)
ON CONFLICT (signing_request_id,event_type,signer_email) DO NOTHING
RETURNING event_id
`, eventID, requestID, eventType, signerEmail).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteWebhookEvent releases a receipt recorded for a delivery whose
// side effects did not complete, so the provider's redelivery is not
// treated as a replay.
func (s *Store) DeleteWebhookEvent(ctx context.Context, eventID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID)
	return err
}
