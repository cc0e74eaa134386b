package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/archive"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/esign"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/layout"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/pdf"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/signing"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/store"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/textgen"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/webhooks"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/db"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/httpx"
)

func main() {
	ctx := context.Background()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	pool := db.MustConnect(ctx)
	st := store.New(pool)

	port := strings.TrimSpace(os.Getenv("SERVICE_PORT"))
	if port == "" {
		port = "8090"
	}
	esignBase := strings.TrimSpace(os.Getenv("ESIGN_BASE_URL"))
	if esignBase == "" {
		esignBase = "https://api.esign.example.com/v1"
	}
	provider := esign.New(esignBase, strings.TrimSpace(os.Getenv("ESIGN_API_KEY")))
	testMode := strings.EqualFold(strings.TrimSpace(os.Getenv("ESIGN_TEST_MODE")), "true")
	webhookSecret := strings.TrimSpace(os.Getenv("ESIGN_WEBHOOK_SECRET"))

	metrics := pdf.NewMetrics()
	engine := layout.NewEngine(layout.LetterSpec(), metrics)
	renderer := pdf.NewRenderer()

	var arch archive.Store = archive.Disabled{}
	if bucket := strings.TrimSpace(os.Getenv("ARCHIVE_BUCKET")); bucket != "" {
		gcs, err := archive.NewGCS(ctx, bucket)
		if err != nil {
			log.Error("archive bucket unavailable, continuing without", "bucket", bucket, "error", err)
		} else {
			arch = gcs
		}
	}

	var generator textgen.Generator
	projectID := strings.TrimSpace(os.Getenv("GCP_PROJECT_ID"))
	region := strings.TrimSpace(os.Getenv("GCP_REGION"))
	if projectID != "" && region != "" {
		g, err := textgen.NewVertexGenerator(ctx, projectID, region)
		if err != nil {
			log.Error("text generator unavailable, document creation disabled", "error", err)
		} else {
			generator = g
		}
	}

	svc := signing.New(signing.Config{
		Store:     st,
		Provider:  provider,
		Engine:    engine,
		Renderer:  renderer,
		Generator: generator,
		Archive:   arch,
		Logger:    log,
		TestMode:  testMode,
	})

	apiToken := strings.TrimSpace(os.Getenv("API_BEARER_TOKEN"))

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/documents", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearerToken(w, r, apiToken) {
			return
		}
		var req struct {
			LandlordID string `json:"landlord_id"`
			Prompt     string `json:"prompt"`
			Signers    []struct {
				Name  string `json:"name"`
				Email string `json:"email"`
				Role  string `json:"role"`
			} `json:"signers"`
		}
		if err := httpx.ReadJSON(w, r, &req); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error())
			return
		}
		if strings.TrimSpace(req.LandlordID) == "" || strings.TrimSpace(req.Prompt) == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "landlord_id and prompt are required")
			return
		}
		signers := make([]domain.Signer, 0, len(req.Signers))
		for i, sg := range req.Signers {
			role := domain.SignerRole(strings.ToLower(strings.TrimSpace(sg.Role)))
			if role != domain.RoleLandlord && role != domain.RoleTenant {
				httpx.WriteError(w, 400, "BAD_REQUEST", "signer role must be landlord or tenant")
				return
			}
			if strings.TrimSpace(sg.Email) == "" {
				httpx.WriteError(w, 400, "BAD_REQUEST", "signer email is required")
				return
			}
			signers = append(signers, domain.Signer{
				Name:  strings.TrimSpace(sg.Name),
				Email: strings.ToLower(strings.TrimSpace(sg.Email)),
				Role:  role,
				Order: i,
			})
		}

		doc, err := svc.CreateDocument(r.Context(), strings.TrimSpace(req.LandlordID), req.Prompt)
		if err != nil {
			httpx.WriteError(w, 502, "GENERATION_FAILED", err.Error())
			return
		}
		if len(signers) > 0 {
			if err := st.ReplaceSigners(r.Context(), doc.ID, signers); err != nil {
				httpx.WriteError(w, 500, "DB_ERROR", err.Error())
				return
			}
		}
		httpx.WriteJSON(w, 201, map[string]any{
			"request_id": httpx.NewRequestID(),
			"document":   documentJSON(doc),
		})
	})

	r.Get("/documents/{document_id}", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearerToken(w, r, apiToken) {
			return
		}
		doc, err := st.GetDocument(r.Context(), chi.URLParam(r, "document_id"))
		if err != nil {
			writeDocumentError(w, err)
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{
			"request_id": httpx.NewRequestID(),
			"document":   documentJSON(doc),
		})
	})

	r.Post("/documents/{document_id}/send-for-signature", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearerToken(w, r, apiToken) {
			return
		}
		var req struct {
			Subject string `json:"subject"`
			Message string `json:"message"`
		}
		if r.ContentLength > 0 {
			if err := httpx.ReadJSON(w, r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error())
				return
			}
		}
		requestID, err := svc.SendForSignature(r.Context(), chi.URLParam(r, "document_id"), signing.SendOptions{
			Subject: strings.TrimSpace(req.Subject),
			Message: strings.TrimSpace(req.Message),
		})
		if err != nil {
			switch {
			case errors.Is(err, store.ErrDocumentNotFound):
				httpx.WriteError(w, 404, "NOT_FOUND", "document not found")
			case errors.Is(err, signing.ErrDuplicateSigningRequest):
				httpx.WriteError(w, 409, "SIGNING_REQUEST_OPEN", "a signing request is already open for this document")
			case errors.Is(err, signing.ErrNoSigners):
				httpx.WriteError(w, 422, "NO_SIGNERS", "document has no signers")
			default:
				var pe *esign.ProviderError
				if errors.As(err, &pe) {
					httpx.WriteError(w, 502, "PROVIDER_ERROR", pe.Error())
					return
				}
				httpx.WriteError(w, 500, "INTERNAL", err.Error())
			}
			return
		}
		httpx.WriteJSON(w, 202, map[string]any{
			"request_id":         httpx.NewRequestID(),
			"signing_request_id": requestID,
			"signature_status":   string(domain.SignaturePending),
		})
	})

	r.Get("/documents/{document_id}/signature-status", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearerToken(w, r, apiToken) {
			return
		}
		doc, statuses, err := svc.Poll(r.Context(), chi.URLParam(r, "document_id"))
		if err != nil {
			writeDocumentError(w, err)
			return
		}
		out := make([]map[string]any, 0, len(statuses))
		for _, sg := range statuses {
			out = append(out, map[string]any{
				"email":     sg.SignerEmail,
				"name":      sg.SignerName,
				"status":    sg.StatusCode,
				"signed_at": sg.SignedAt,
			})
		}
		httpx.WriteJSON(w, 200, map[string]any{
			"request_id":       httpx.NewRequestID(),
			"signature_status": string(doc.SignatureStatus),
			"signers":          out,
		})
	})

	r.Post("/documents/{document_id}/cancel-signature", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearerToken(w, r, apiToken) {
			return
		}
		if err := svc.Cancel(r.Context(), chi.URLParam(r, "document_id")); err != nil {
			writeDocumentError(w, err)
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{
			"request_id":       httpx.NewRequestID(),
			"signature_status": string(domain.SignatureCancelled),
		})
	})

	r.Post("/documents/{document_id}/remind", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearerToken(w, r, apiToken) {
			return
		}
		var req struct {
			SignerEmail string `json:"signer_email"`
		}
		if err := httpx.ReadJSON(w, r, &req); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error())
			return
		}
		if strings.TrimSpace(req.SignerEmail) == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "signer_email is required")
			return
		}
		err := svc.Remind(r.Context(), chi.URLParam(r, "document_id"), strings.ToLower(strings.TrimSpace(req.SignerEmail)))
		if err != nil {
			if errors.Is(err, signing.ErrNoOpenRequest) {
				httpx.WriteError(w, 409, "NO_OPEN_REQUEST", "document has no open signing request")
				return
			}
			writeDocumentError(w, err)
			return
		}
		httpx.WriteJSON(w, 202, map[string]any{"request_id": httpx.NewRequestID(), "status": "reminder_sent"})
	})

	r.Method(http.MethodPost, "/webhooks/esign", webhooks.NewHandler(svc, webhookSecret, log))

	log.Info("listening", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// requireBearerToken guards the document API. An empty configured
// token leaves the API open, which is the local development setup.
func requireBearerToken(w http.ResponseWriter, r *http.Request, configured string) bool {
	if configured == "" {
		return true
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || strings.TrimSpace(strings.TrimPrefix(auth, prefix)) != configured {
		httpx.WriteError(w, 401, "UNAUTHORIZED", "bearer token required")
		return false
	}
	return true
}

func documentJSON(doc domain.Document) map[string]any {
	return map[string]any{
		"document_id":        doc.ID,
		"landlord_id":        doc.LandlordID,
		"title":              doc.Title,
		"body":               doc.Body,
		"signing_request_id": doc.SigningRequestID,
		"signature_status":   string(doc.SignatureStatus),
		"created_at":         doc.CreatedAt,
		"updated_at":         doc.UpdatedAt,
	}
}

func writeDocumentError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrDocumentNotFound) {
		httpx.WriteError(w, 404, "NOT_FOUND", "document not found")
		return
	}
	var pe *esign.ProviderError
	if errors.As(err, &pe) {
		httpx.WriteError(w, 502, "PROVIDER_ERROR", pe.Error())
		return
	}
	httpx.WriteError(w, 500, "INTERNAL", err.Error())
}
