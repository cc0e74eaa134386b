// Package httpx holds the JSON request/response helpers shared by the
// API and webhook handlers.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// MaxBodyBytes caps request bodies; document prompts and webhook
// payloads are both comfortably under this.
const MaxBodyBytes = 1 << 20

func NewRequestID() string { return "rid_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes a size-capped JSON body, rejecting unknown fields
// and trailing garbage.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("request body contains more than one JSON value")
	}
	return nil
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, map[string]any{
		"request_id": NewRequestID(),
		"error":      map[string]any{"code": code, "message": message},
	})
}
