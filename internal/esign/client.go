// Package esign is the HTTP client for the external signing provider.
// The provider holds the signing request as its unit of work; this
// client only submits, reads, cancels and nudges it.
package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBodyBytes = 64 << 10

// ProviderError carries the provider's diagnostic payload for any
// non-2xx response. It is surfaced to the caller, never retried
// automatically.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("esign provider returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Signer is one ordered recipient of the signing request.
type Signer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Order int    `json:"order"`
}

// Field places one signature overlay in the provider's top-left-origin
// coordinate system.
type Field struct {
	SignerEmail string  `json:"signer_email"`
	Page        int     `json:"page"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

type CreateRequest struct {
	Title    string   `json:"title"`
	FileB64  string   `json:"file_base64"`
	Signers  []Signer `json:"signers"`
	Fields   []Field  `json:"fields"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message,omitempty"`
	TestMode bool     `json:"test_mode"`
}

type SignerState struct {
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	State    string     `json:"state"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

type CreateResponse struct {
	RequestID string        `json:"signature_request_id"`
	Signers   []SignerState `json:"signers"`
}

type StatusResponse struct {
	State   string        `json:"state"`
	Signers []SignerState `json:"signers"`
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	var out CreateResponse
	err := c.do(ctx, http.MethodPost, "/signature_requests", req, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, requestID string) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/signature_requests/"+requestID, nil, &out)
	return out, err
}

// Cancel is idempotent: a request that is already cancelled, completed
// or unknown to the provider is treated as cancelled.
func (c *Client) Cancel(ctx context.Context, requestID string) error {
	err := c.do(ctx, http.MethodPost, "/signature_requests/"+requestID+"/cancel", nil, nil)
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case http.StatusNotFound, http.StatusConflict, http.StatusGone:
			return nil
		}
	}
	return err
}

func (c *Client) Remind(ctx context.Context, requestID, signerEmail string) error {
	body := map[string]string{"signer_email": signerEmail}
	return c.do(ctx, http.MethodPost, "/signature_requests/"+requestID+"/remind", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
