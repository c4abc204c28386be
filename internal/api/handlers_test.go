package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
	"github.com/Foundasion/appointment-confirmation-bot/internal/config"
	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
	"github.com/Foundasion/appointment-confirmation-bot/internal/registry"
	"github.com/Foundasion/appointment-confirmation-bot/internal/telephony"
)

type fakeCaller struct {
	callErr   error
	lastTo    string
	callCount int
}

func (f *fakeCaller) MakeCall(ctx context.Context, toNumber, domain string) (string, error) {
	if f.callErr != nil {
		return "", f.callErr
	}
	f.callCount++
	f.lastTo = toNumber
	return "CA123", nil
}

func (f *fakeCaller) GetCall(ctx context.Context, callSID string) (*telephony.Call, error) {
	if callSID != "CA123" {
		return nil, &telephony.APIError{Code: 20404, Message: "not found", Status: http.StatusNotFound}
	}
	return &telephony.Call{SID: callSID, Status: "in-progress", To: "+11234567890"}, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type serverDeps struct {
	server *Server
	store  callstore.Store
	reg    *registry.Registry
	caller *fakeCaller
}

func newTestServer(t *testing.T, caller Caller, open SessionOpener) (*Server, http.Handler, *serverDeps) {
	t.Helper()

	cfg := config.Config{Env: "test", Domain: "bot.example.com"}
	dir := directory.NewMemoryDirectory()
	store := callstore.NewMemoryStore()
	reg := registry.New(time.Minute)

	s := NewServer(cfg, dir, store, reg, caller, open, testLogger())
	health := NewHealthHandler(nil, nil, "test", "test")
	router := NewRouter(s, health, testLogger())

	deps := &serverDeps{server: s, store: store, reg: reg}
	if fc, ok := caller.(*fakeCaller); ok {
		deps.caller = fc
	}
	return s, router, deps
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRootAndHealth(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{}, nil)

	rr := doJSON(t, router, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("root status = %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/health/live", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("liveness status = %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/health/ready", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readiness status = %d", rr.Code)
	}
}

func TestMakeCall(t *testing.T) {
	_, router, deps := newTestServer(t, &fakeCaller{}, nil)

	rr := doJSON(t, router, http.MethodPost, "/make-call",
		`{"to_number":"+11234567890","appointment_id":"A001"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp MakeCallResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CallSID != "CA123" || resp.Status != callstore.StateInitiated {
		t.Fatalf("resp = %+v", resp)
	}

	// The appointment context is registered for the media stream to find.
	appt, ok := deps.reg.Lookup("CA123")
	if !ok || appt == nil || appt.AppointmentID != "A001" {
		t.Fatalf("registry entry = %+v %v", appt, ok)
	}

	rec, err := deps.store.Get(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("call record missing: %v", err)
	}
	if rec.Status != callstore.StateInitiated || rec.To != "+11234567890" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestMakeCallValidation(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{}, nil)

	rr := doJSON(t, router, http.MethodPost, "/make-call", `{"appointment_id":"A001"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing to_number: status = %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/make-call", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status = %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/make-call",
		`{"to_number":"+11234567890","appointment_id":"A999"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown appointment: status = %d", rr.Code)
	}
}

func TestMakeCallNumberNotAllowed(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{callErr: telephony.ErrNumberNotAllowed}, nil)

	rr := doJSON(t, router, http.MethodPost, "/make-call", `{"to_number":"+19998887777"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var resp ErrorResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Error != "number_not_allowed" {
		t.Fatalf("error code = %q", resp.Error)
	}
}

func TestMakeCallProviderError(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{callErr: errors.New("twilio down")}, nil)

	rr := doJSON(t, router, http.MethodPost, "/make-call", `{"to_number":"+11234567890"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestMakeCallWithoutTelephony(t *testing.T) {
	_, router, _ := newTestServer(t, nil, nil)

	rr := doJSON(t, router, http.MethodPost, "/make-call", `{"to_number":"+11234567890"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestCallStatusFromProvider(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{}, nil)

	rr := doJSON(t, router, http.MethodGet, "/call-status/CA123", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp CallStatusResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != "in-progress" {
		t.Fatalf("resp = %+v", resp)
	}

	rr = doJSON(t, router, http.MethodGet, "/call-status/CAmissing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown call: status = %d", rr.Code)
	}
}

func TestCallStatusFromStoreFallback(t *testing.T) {
	_, router, deps := newTestServer(t, nil, nil)

	_ = deps.store.Create(context.Background(), callstore.Record{
		CallSID: "CA9", To: "+15550001111", Status: callstore.StateCompleted,
	})

	rr := doJSON(t, router, http.MethodGet, "/call-status/CA9", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp CallStatusResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != callstore.StateCompleted || resp.To != "+15550001111" {
		t.Fatalf("resp = %+v", resp)
	}

	rr = doJSON(t, router, http.MethodGet, "/call-status/CAunknown", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown call: status = %d", rr.Code)
	}
}

func TestCallTranscript(t *testing.T) {
	_, router, deps := newTestServer(t, &fakeCaller{}, nil)

	_ = deps.store.Create(context.Background(), callstore.Record{CallSID: "CA1", Status: callstore.StateCompleted})
	_ = deps.store.SetTranscript(context.Background(), "CA1", []callstore.Turn{
		{Role: callstore.RoleAssistant, Content: "Hi there!"},
		{Role: callstore.RoleUser, Content: "Yes, that works"},
	})

	rr := doJSON(t, router, http.MethodGet, "/call-transcript/CA1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp TranscriptResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Transcript) != 2 || resp.Transcript[1].Content != "Yes, that works" {
		t.Fatalf("transcript = %+v", resp.Transcript)
	}

	// Unknown calls answer with an empty transcript, not an error.
	rr = doJSON(t, router, http.MethodGet, "/call-transcript/CAunknown", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown call: status = %d", rr.Code)
	}
	resp = TranscriptResponse{}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Transcript == nil || len(resp.Transcript) != 0 {
		t.Fatalf("unknown call transcript = %v, want empty list", resp.Transcript)
	}
}

func TestCallOutcome(t *testing.T) {
	_, router, deps := newTestServer(t, &fakeCaller{}, nil)

	newTime := time.Date(2026, time.May, 5, 14, 0, 0, 0, time.UTC)
	_ = deps.store.Create(context.Background(), callstore.Record{CallSID: "CA1", Status: callstore.StateCompleted})
	_ = deps.store.SetOutcome(context.Background(), "CA1", callstore.OutcomeRescheduled, &newTime)

	rr := doJSON(t, router, http.MethodGet, "/call-outcome/CA1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp OutcomeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome == nil || *resp.Outcome != callstore.OutcomeRescheduled {
		t.Fatalf("outcome = %v", resp.Outcome)
	}
	if resp.NewDateTime == nil || !resp.NewDateTime.Equal(newTime) {
		t.Fatalf("new datetime = %v", resp.NewDateTime)
	}

	// Unknown calls answer with a null outcome.
	rr = doJSON(t, router, http.MethodGet, "/call-outcome/CAunknown", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown call: status = %d", rr.Code)
	}
	resp = OutcomeResponse{}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Outcome != nil {
		t.Fatalf("unknown call outcome = %v, want null", resp.Outcome)
	}
}

func TestIncomingCallTwiML(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/incoming-call",
		strings.NewReader("From=%2B11234567890&CallSid=CA42"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("content type = %q", ct)
	}
	body := rr.Body.String()
	// +11234567890 is John Doe in the demo directory.
	if !strings.Contains(body, "John Doe") {
		t.Fatalf("greeting not personalized: %s", body)
	}
	if !strings.Contains(body, "wss://bot.example.com/media-stream") {
		t.Fatalf("stream url missing: %s", body)
	}
}

func TestIncomingCallUnknownCaller(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/incoming-call",
		strings.NewReader("From=%2B19998887777"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "confirm or reschedule") {
		t.Fatalf("generic greeting missing: %s", rr.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	_, router, _ := newTestServer(t, &fakeCaller{}, nil)

	rr := doJSON(t, router, http.MethodGet, "/", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header missing")
	}
}
