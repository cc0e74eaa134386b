package signing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/esign"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/layout"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/store"
	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"
)

type fakeStore struct {
	docs     map[string]domain.Document
	signers  map[string][]domain.Signer
	statuses map[string]map[string]domain.SignerStatus
	events   map[string]bool
	eventIDs map[string]string

	attachResult bool
	casFailures  int
	casErr       error

	attachCalls int
	casCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:         map[string]domain.Document{},
		signers:      map[string][]domain.Signer{},
		statuses:     map[string]map[string]domain.SignerStatus{},
		events:       map[string]bool{},
		eventIDs:     map[string]string{},
		attachResult: true,
	}
}

func (f *fakeStore) CreateDocument(_ context.Context, d domain.Document) error {
	f.docs[d.ID] = d
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (domain.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return domain.Document{}, store.ErrDocumentNotFound
	}
	return d, nil
}

func (f *fakeStore) GetDocumentBySigningRequest(_ context.Context, requestID string) (domain.Document, error) {
	for _, d := range f.docs {
		if d.SigningRequestID != nil && *d.SigningRequestID == requestID {
			return d, nil
		}
	}
	return domain.Document{}, store.ErrDocumentNotFound
}

func (f *fakeStore) AttachSigningRequest(_ context.Context, documentID, requestID string) (bool, error) {
	f.attachCalls++
	if !f.attachResult {
		return false, nil
	}
	d := f.docs[documentID]
	d.SigningRequestID = &requestID
	d.SignatureStatus = domain.SignaturePending
	f.docs[documentID] = d
	return true, nil
}

func (f *fakeStore) UpdateStatusCAS(_ context.Context, documentID string, from, to domain.SignatureStatus) (bool, error) {
	f.casCalls++
	if f.casErr != nil {
		err := f.casErr
		f.casErr = nil
		return false, err
	}
	if f.casFailures > 0 {
		f.casFailures--
		return false, nil
	}
	d := f.docs[documentID]
	if d.SignatureStatus != from {
		return false, nil
	}
	d.SignatureStatus = to
	f.docs[documentID] = d
	return true, nil
}

func (f *fakeStore) ClearSigningRequest(_ context.Context, documentID string) error {
	d := f.docs[documentID]
	d.SigningRequestID = nil
	d.SignatureStatus = domain.SignatureCancelled
	f.docs[documentID] = d
	delete(f.statuses, documentID)
	return nil
}

func (f *fakeStore) UpsertSignerStatus(_ context.Context, documentID string, st domain.SignerStatus) error {
	m := f.statuses[documentID]
	if m == nil {
		m = map[string]domain.SignerStatus{}
		f.statuses[documentID] = m
	}
	if prev, ok := m[st.SignerEmail]; ok && prev.StatusCode == domain.SignerSigned && st.StatusCode == domain.SignerAwaiting {
		return nil
	}
	m[st.SignerEmail] = st
	return nil
}

func (f *fakeStore) ListSignerStatuses(_ context.Context, documentID string) ([]domain.SignerStatus, error) {
	var out []domain.SignerStatus
	for _, st := range f.statuses[documentID] {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeStore) LoadSigners(_ context.Context, documentID string) ([]domain.Signer, error) {
	return f.signers[documentID], nil
}

func (f *fakeStore) InsertWebhookEvent(_ context.Context, eventID, requestID, eventType, signerEmail string) (bool, error) {
	key := requestID + "|" + eventType + "|" + signerEmail
	if f.events[key] {
		return false, nil
	}
	f.events[key] = true
	f.eventIDs[eventID] = key
	return true, nil
}

func (f *fakeStore) DeleteWebhookEvent(_ context.Context, eventID string) error {
	if key, ok := f.eventIDs[eventID]; ok {
		delete(f.events, key)
		delete(f.eventIDs, eventID)
	}
	return nil
}

type fakeProvider struct {
	createResp esign.CreateResponse
	createErr  error
	statusResp esign.StatusResponse
	statusErr  error

	createCalls int
	statusCalls int
	cancelCalls int
	remindCalls int

	lastCreate esign.CreateRequest
	cancelled  []string
}

func (f *fakeProvider) Create(_ context.Context, req esign.CreateRequest) (esign.CreateResponse, error) {
	f.createCalls++
	f.lastCreate = req
	return f.createResp, f.createErr
}

func (f *fakeProvider) Status(_ context.Context, _ string) (esign.StatusResponse, error) {
	f.statusCalls++
	return f.statusResp, f.statusErr
}

func (f *fakeProvider) Cancel(_ context.Context, requestID string) error {
	f.cancelCalls++
	f.cancelled = append(f.cancelled, requestID)
	return nil
}

func (f *fakeProvider) Remind(_ context.Context, _, _ string) error {
	f.remindCalls++
	return nil
}

type fakeRenderer struct{ calls int }

func (f *fakeRenderer) Render(pages []layout.Page) ([]byte, error) {
	f.calls++
	if len(pages) == 0 {
		return nil, errors.New("no pages")
	}
	return []byte("%PDF-fake"), nil
}

type stubMeasurer struct{}

func (stubMeasurer) Width(text string, _ layout.Font, size float64) float64 {
	return float64(len(text)) * size * 0.6
}

func testService(t *testing.T) (*Service, *fakeStore, *fakeProvider) {
	t.Helper()
	st := newFakeStore()
	pr := &fakeProvider{createResp: esign.CreateResponse{RequestID: "req_abc"}}
	svc := New(Config{
		Store:    st,
		Provider: pr,
		Engine:   layout.NewEngine(layout.LetterSpec(), stubMeasurer{}),
		Renderer: &fakeRenderer{},
	})
	return svc, st, pr
}

func seedDocument(st *fakeStore, id string, status domain.SignatureStatus, requestID string) {
	d := domain.Document{
		ID:              id,
		LandlordID:      "lld_1",
		Title:           "Lease Agreement",
		Body:            "Clause one.\n\nClause two.",
		SignatureStatus: status,
	}
	if requestID != "" {
		d.SigningRequestID = &requestID
	}
	st.docs[id] = d
	st.signers[id] = []domain.Signer{
		{Name: "Pat Owner", Email: "pat@example.com", Role: domain.RoleLandlord, Order: 0},
		{Name: "Riley Renter", Email: "riley@example.com", Role: domain.RoleTenant, Order: 1},
	}
}

func TestSendForSignature(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignatureNone, "")

	reqID, err := svc.SendForSignature(context.Background(), "doc_1", SendOptions{Subject: "Please sign"})
	if err != nil {
		t.Fatalf("SendForSignature: %v", err)
	}
	if reqID != "req_abc" {
		t.Fatalf("request id = %q, want req_abc", reqID)
	}
	if pr.createCalls != 1 {
		t.Fatalf("provider create calls = %d, want 1", pr.createCalls)
	}
	if len(pr.lastCreate.Signers) != 2 || len(pr.lastCreate.Fields) != 2 {
		t.Fatalf("create carried %d signers, %d fields; want 2 and 2",
			len(pr.lastCreate.Signers), len(pr.lastCreate.Fields))
	}
	if pr.lastCreate.FileB64 == "" {
		t.Fatal("create carried no file")
	}
	for _, f := range pr.lastCreate.Fields {
		if f.Page < 1 || f.X <= 0 || f.Y <= 0 {
			t.Fatalf("implausible field coordinates: %+v", f)
		}
	}

	doc := st.docs["doc_1"]
	if doc.SigningRequestID == nil || *doc.SigningRequestID != "req_abc" {
		t.Fatalf("request not attached: %+v", doc)
	}
	if doc.SignatureStatus != domain.SignaturePending {
		t.Fatalf("status = %q, want pending", doc.SignatureStatus)
	}
	for _, email := range []string{"pat@example.com", "riley@example.com"} {
		if st.statuses["doc_1"][email].StatusCode != domain.SignerAwaiting {
			t.Fatalf("signer %s not seeded awaiting", email)
		}
	}
}

func TestSendRejectsOpenRequestBeforeProviderCall(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_old")

	_, err := svc.SendForSignature(context.Background(), "doc_1", SendOptions{})
	if !errors.Is(err, ErrDuplicateSigningRequest) {
		t.Fatalf("err = %v, want ErrDuplicateSigningRequest", err)
	}
	if pr.createCalls != 0 {
		t.Fatalf("provider create calls = %d, want 0", pr.createCalls)
	}
}

func TestSendWithdrawsLosingRequest(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignatureNone, "")
	st.attachResult = false

	_, err := svc.SendForSignature(context.Background(), "doc_1", SendOptions{})
	if !errors.Is(err, ErrDuplicateSigningRequest) {
		t.Fatalf("err = %v, want ErrDuplicateSigningRequest", err)
	}
	if pr.cancelCalls != 1 || pr.cancelled[0] != "req_abc" {
		t.Fatalf("losing request was not withdrawn: %v", pr.cancelled)
	}
}

func TestSendRequiresSigners(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignatureNone, "")
	st.signers["doc_1"] = nil

	_, err := svc.SendForSignature(context.Background(), "doc_1", SendOptions{})
	if !errors.Is(err, ErrNoSigners) {
		t.Fatalf("err = %v, want ErrNoSigners", err)
	}
	if pr.createCalls != 0 {
		t.Fatal("provider should not be called without signers")
	}
}

func TestSendSurfacesProviderFailure(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignatureNone, "")
	pr.createErr = &esign.ProviderError{StatusCode: 422, Body: "bad file"}

	_, err := svc.SendForSignature(context.Background(), "doc_1", SendOptions{})
	var pe *esign.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 422 {
		t.Fatalf("err = %v, want 422 provider error", err)
	}
	if st.attachCalls != 0 {
		t.Fatal("nothing should be attached after a provider failure")
	}
	if st.docs["doc_1"].SignatureStatus != domain.SignatureNone {
		t.Fatalf("status moved to %q on failure", st.docs["doc_1"].SignatureStatus)
	}
}

func TestHandleProviderEventAdvancesStatus(t *testing.T) {
	svc, st, _ := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")

	now := time.Now().UTC()
	ev := ProviderEvent{
		RequestID:   "req_abc",
		EventType:   "document_signed",
		SignerEmail: "pat@example.com",
		SignerName:  "Pat Owner",
		SignedAt:    &now,
	}
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	if got := st.docs["doc_1"].SignatureStatus; got != domain.SignaturePartiallySigned {
		t.Fatalf("status = %q, want partially_signed", got)
	}
	rec := st.statuses["doc_1"]["pat@example.com"]
	if rec.StatusCode != domain.SignerSigned || rec.SignedAt == nil {
		t.Fatalf("signer record not updated: %+v", rec)
	}
}

func TestHandleProviderEventDropsReplay(t *testing.T) {
	svc, st, _ := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")

	ev := ProviderEvent{RequestID: "req_abc", EventType: "document_completed"}
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	casBefore := st.casCalls
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("replayed delivery: %v", err)
	}
	if st.casCalls != casBefore {
		t.Fatal("replayed delivery reached the status writer")
	}
	if st.docs["doc_1"].SignatureStatus != domain.SignatureCompleted {
		t.Fatalf("status = %q, want completed", st.docs["doc_1"].SignatureStatus)
	}
}

func TestHandleProviderEventIgnoresLateViewed(t *testing.T) {
	svc, st, _ := testService(t)
	seedDocument(st, "doc_1", domain.SignatureCompleted, "req_abc")

	ev := ProviderEvent{RequestID: "req_abc", EventType: "document_viewed"}
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	if st.docs["doc_1"].SignatureStatus != domain.SignatureCompleted {
		t.Fatalf("completed was downgraded to %q", st.docs["doc_1"].SignatureStatus)
	}
}

func TestHandleProviderEventUnknownRequest(t *testing.T) {
	svc, _, _ := testService(t)
	ev := ProviderEvent{RequestID: "req_ghost", EventType: "document_completed"}
	if err := svc.HandleProviderEvent(context.Background(), ev); !errors.Is(err, ErrUnknownSigningRequest) {
		t.Fatalf("err = %v, want ErrUnknownSigningRequest", err)
	}
}

func TestHandleProviderEventUnknownType(t *testing.T) {
	svc, st, _ := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")

	ev := ProviderEvent{RequestID: "req_abc", EventType: "signer_sneezed"}
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	if st.docs["doc_1"].SignatureStatus != domain.SignaturePending {
		t.Fatal("unknown event type should not move status")
	}
}

func TestHandleProviderEventRetriesCAS(t *testing.T) {
	svc, st, _ := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")
	st.casFailures = 2

	ev := ProviderEvent{RequestID: "req_abc", EventType: "document_completed"}
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	if st.casCalls != 3 {
		t.Fatalf("cas calls = %d, want 3", st.casCalls)
	}
	if st.docs["doc_1"].SignatureStatus != domain.SignatureCompleted {
		t.Fatalf("status = %q, want completed", st.docs["doc_1"].SignatureStatus)
	}
}

func TestHandleProviderEventRedeliveryAfterStoreFailure(t *testing.T) {
	svc, st, _ := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")
	st.casErr = errors.New("connection reset")

	ev := ProviderEvent{RequestID: "req_abc", EventType: "document_completed"}
	if err := svc.HandleProviderEvent(context.Background(), ev); err == nil {
		t.Fatal("expected the failed delivery to surface an error")
	}
	if st.docs["doc_1"].SignatureStatus != domain.SignaturePending {
		t.Fatalf("status = %q after failed delivery, want pending", st.docs["doc_1"].SignatureStatus)
	}

	// The provider retries; the redelivery must not be dropped as a replay.
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if st.docs["doc_1"].SignatureStatus != domain.SignatureCompleted {
		t.Fatalf("status = %q, want completed", st.docs["doc_1"].SignatureStatus)
	}
}

func TestHandleProviderEventCancellationClearsRequest(t *testing.T) {
	svc, st, _ := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePartiallySigned, "req_abc")
	st.statuses["doc_1"] = map[string]domain.SignerStatus{
		"pat@example.com": {SignerEmail: "pat@example.com", StatusCode: domain.SignerSigned},
	}

	ev := ProviderEvent{RequestID: "req_abc", EventType: "request_cancelled"}
	if err := svc.HandleProviderEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	doc := st.docs["doc_1"]
	if doc.SignatureStatus != domain.SignatureCancelled {
		t.Fatalf("status = %q, want cancelled", doc.SignatureStatus)
	}
	if doc.SigningRequestID != nil {
		t.Fatalf("request id still attached: %v", *doc.SigningRequestID)
	}
	if len(st.statuses["doc_1"]) != 0 {
		t.Fatalf("signer rows survived cancellation: %+v", st.statuses["doc_1"])
	}
}

func TestPollReconcilesPartialSigning(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")
	now := time.Now().UTC()
	pr.statusResp = esign.StatusResponse{
		State: "in_progress",
		Signers: []esign.SignerState{
			{Name: "Pat Owner", Email: "pat@example.com", State: domain.SignerSigned, SignedAt: &now},
			{Name: "Riley Renter", Email: "riley@example.com", State: domain.SignerAwaiting},
		},
	}

	doc, statuses, err := svc.Poll(context.Background(), "doc_1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if doc.SignatureStatus != domain.SignaturePartiallySigned {
		t.Fatalf("status = %q, want partially_signed", doc.SignatureStatus)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d signer statuses, want 2", len(statuses))
	}
}

func TestPollNeverDowngrades(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignatureCompleted, "req_abc")
	pr.statusResp = esign.StatusResponse{
		State: "in_progress",
		Signers: []esign.SignerState{
			{Email: "pat@example.com", State: domain.SignerSigned},
			{Email: "riley@example.com", State: domain.SignerAwaiting},
		},
	}

	doc, _, err := svc.Poll(context.Background(), "doc_1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if doc.SignatureStatus != domain.SignatureCompleted {
		t.Fatalf("poll downgraded completed to %q", doc.SignatureStatus)
	}
}

func TestPollReconcilesProviderCancellation(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")
	pr.statusResp = esign.StatusResponse{
		State: "cancelled",
		Signers: []esign.SignerState{
			{Email: "pat@example.com", State: domain.SignerAwaiting},
			{Email: "riley@example.com", State: domain.SignerAwaiting},
		},
	}

	doc, statuses, err := svc.Poll(context.Background(), "doc_1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if doc.SignatureStatus != domain.SignatureCancelled {
		t.Fatalf("status = %q, want cancelled", doc.SignatureStatus)
	}
	if doc.SigningRequestID != nil {
		t.Fatalf("request id still attached: %v", *doc.SigningRequestID)
	}
	if len(statuses) != 0 {
		t.Fatalf("signer rows survived cancellation: %+v", statuses)
	}
}

func TestPollWithoutRequestSkipsProvider(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignatureNone, "")

	doc, _, err := svc.Poll(context.Background(), "doc_1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if pr.statusCalls != 0 {
		t.Fatal("provider polled for a document with no open request")
	}
	if doc.SignatureStatus != domain.SignatureNone {
		t.Fatalf("status = %q, want none", doc.SignatureStatus)
	}
}

func TestCancelIdempotent(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")

	if err := svc.Cancel(context.Background(), "doc_1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	doc := st.docs["doc_1"]
	if doc.SigningRequestID != nil || doc.SignatureStatus != domain.SignatureCancelled {
		t.Fatalf("cancel left %+v", doc)
	}
	if pr.cancelCalls != 1 {
		t.Fatalf("provider cancel calls = %d, want 1", pr.cancelCalls)
	}

	// Second cancel has nothing to withdraw and succeeds quietly.
	if err := svc.Cancel(context.Background(), "doc_1"); err != nil {
		t.Fatalf("repeat Cancel: %v", err)
	}
	if pr.cancelCalls != 1 {
		t.Fatal("repeat cancel reached the provider")
	}
}

func TestRemind(t *testing.T) {
	svc, st, pr := testService(t)
	seedDocument(st, "doc_1", domain.SignaturePending, "req_abc")

	if err := svc.Remind(context.Background(), "doc_1", "riley@example.com"); err != nil {
		t.Fatalf("Remind: %v", err)
	}
	if pr.remindCalls != 1 {
		t.Fatalf("remind calls = %d, want 1", pr.remindCalls)
	}

	st.docs["doc_2"] = domain.Document{ID: "doc_2", SignatureStatus: domain.SignatureNone}
	if err := svc.Remind(context.Background(), "doc_2", "riley@example.com"); !errors.Is(err, ErrNoOpenRequest) {
		t.Fatalf("err = %v, want ErrNoOpenRequest", err)
	}
}
