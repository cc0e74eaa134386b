// Package lifecycle holds the signature-status state machine. Webhook
// deliveries and on-demand polls both funnel through it, so transitions
// must be idempotent and never move a status backward.
package lifecycle

import "github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"

type Event string

const (
	EventRequestCreated Event = "request_created"
	EventViewed         Event = "viewed"
	EventSignerSigned   Event = "signer_signed"
	EventAllSigned      Event = "all_signed"
	EventDeclined       Event = "declined"
	EventExpired        Event = "expired"
	EventCancelled      Event = "cancelled"
)

// rank orders non-terminal statuses by severity. Terminal statuses are
// handled separately; they are never outranked by a later event.
func rank(s domain.SignatureStatus) int {
	switch s {
	case domain.SignatureNone:
		return 0
	case domain.SignaturePending:
		return 1
	case domain.SignatureViewed:
		return 2
	case domain.SignaturePartiallySigned:
		return 3
	case domain.SignatureCompleted:
		return 4
	}
	return -1
}

// Next applies the transition table. ok is false when the event is not
// allowed from the current status; callers log and ignore such events
// rather than failing, since providers may deliver unexpected sequences.
func Next(current domain.SignatureStatus, ev Event) (domain.SignatureStatus, bool) {
	switch ev {
	case EventRequestCreated:
		if current == domain.SignatureNone {
			return domain.SignaturePending, true
		}
	case EventViewed:
		// A view event only ever advances pending; it never downgrades
		// a more advanced status.
		if current == domain.SignaturePending {
			return domain.SignatureViewed, true
		}
	case EventSignerSigned:
		switch current {
		case domain.SignaturePending, domain.SignatureViewed, domain.SignaturePartiallySigned:
			return domain.SignaturePartiallySigned, true
		}
	case EventAllSigned:
		switch current {
		case domain.SignaturePending, domain.SignatureViewed, domain.SignaturePartiallySigned:
			return domain.SignatureCompleted, true
		}
	case EventDeclined:
		if !current.Terminal() && current != domain.SignatureNone {
			return domain.SignatureDeclined, true
		}
	case EventExpired:
		if !current.Terminal() && current != domain.SignatureNone {
			return domain.SignatureExpired, true
		}
	case EventCancelled:
		// Explicit cancel is reachable from any status.
		return domain.SignatureCancelled, true
	}
	return current, false
}

// Apply guards a directly proposed status (the poll path derives one
// from provider state) with the monotonicity rule: the proposal only
// wins if it is at least as severe as the current value or is a
// terminal override. Terminal statuses yield only to an explicit cancel.
func Apply(current, proposed domain.SignatureStatus) domain.SignatureStatus {
	if proposed == current {
		return current
	}
	if current.Terminal() {
		if proposed == domain.SignatureCancelled {
			return proposed
		}
		return current
	}
	if proposed.Terminal() {
		return proposed
	}
	if rank(proposed) >= rank(current) {
		return proposed
	}
	return current
}
