// Package webhooks is the ingress for signing provider callbacks. The
// handler acknowledges with 200 whenever retrying cannot help, so the
// provider's delivery loop terminates; only transient store failures
// return 5xx.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/signing"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/httpx"
)

type EventSink interface {
	HandleProviderEvent(ctx context.Context, ev signing.ProviderEvent) error
}

type Handler struct {
	sink   EventSink
	secret string
	log    *slog.Logger
}

func NewHandler(sink EventSink, secret string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{sink: sink, secret: secret, log: log}
}

type payload struct {
	EventType        string `json:"event_type"`
	SigningRequestID string `json:"signature_request_id"`
	Signer           *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"signer"`
	SignedAt *time.Time `json:"signed_at"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, httpx.MaxBodyBytes))
	if err != nil {
		h.log.Warn("webhook body read failed", "error", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if !verifySignature(r.Header, body, h.secret) {
		h.log.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p.EventType == "" || p.SigningRequestID == "" {
		h.log.Warn("malformed webhook payload", "error", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ev := signing.ProviderEvent{
		RequestID: p.SigningRequestID,
		EventType: p.EventType,
		SignedAt:  p.SignedAt,
	}
	if p.Signer != nil {
		ev.SignerEmail = p.Signer.Email
		ev.SignerName = p.Signer.Name
	}

	if err := h.sink.HandleProviderEvent(r.Context(), ev); err != nil {
		if errors.Is(err, signing.ErrUnknownSigningRequest) {
			h.log.Warn("webhook for unknown signing request", "requestId", p.SigningRequestID)
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.log.Error("webhook processing failed", "requestId", p.SigningRequestID, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "event processing failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
