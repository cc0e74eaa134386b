package domain

import (
	"strings"
	"time"
)

// SignatureStatus is the lifecycle status of a document's signing request.
type SignatureStatus string

const (
	SignatureNone            SignatureStatus = "none"
	SignaturePending         SignatureStatus = "pending"
	SignatureViewed          SignatureStatus = "viewed"
	SignaturePartiallySigned SignatureStatus = "partially_signed"
	SignatureCompleted       SignatureStatus = "completed"
	SignatureDeclined        SignatureStatus = "declined"
	SignatureCancelled       SignatureStatus = "cancelled"
	SignatureExpired         SignatureStatus = "expired"
)

// Terminal reports whether no further automatic transition applies.
func (s SignatureStatus) Terminal() bool {
	switch s {
	case SignatureCompleted, SignatureDeclined, SignatureCancelled, SignatureExpired:
		return true
	}
	return false
}

type SignerRole string

const (
	RoleLandlord SignerRole = "landlord"
	RoleTenant   SignerRole = "tenant"
)

// Label returns the role name as printed on the signature line.
func (r SignerRole) Label() string {
	if r == "" {
		return "Signer"
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Per-signer state codes mirrored from the provider.
const (
	SignerAwaiting = "awaiting"
	SignerSigned   = "signed"
	SignerDeclined = "declined"
)

// Document is the signable artifact of record. Title and body are
// immutable once rendered; regeneration creates a new document.
// At most one signing request is open at a time: a new one can be
// attached only while SigningRequestID is nil.
type Document struct {
	ID               string
	LandlordID       string
	Title            string
	Body             string
	SigningRequestID *string
	SignatureStatus  SignatureStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Signer is a party who must apply a signature, in signing-sequence
// order (landlord first).
type Signer struct {
	Name  string
	Email string
	Role  SignerRole
	Order int
}

// SignerStatus is the per-signer read model cached against the
// document's current signing request.
type SignerStatus struct {
	SignerEmail string
	SignerName  string
	StatusCode  string
	SignedAt    *time.Time
}
