package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/njabbott/npp-simulation/internal/app"
	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/subscription"
	"github.com/njabbott/npp-simulation/pkg/nppclient"
)

type idleStream struct {
	once   sync.Once
	closed chan struct{}
}

func (s *idleStream) Next() (domain.StatusEvent, error) {
	<-s.closed
	return domain.StatusEvent{}, io.EOF
}

func (s *idleStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type backendStub struct {
	submitErr error
}

func (b *backendStub) SubmitPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentRecord, error) {
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return &domain.PaymentRecord{ID: 1, PaymentID: "p1", Amount: req.Amount, Status: domain.StatusInitiated}, nil
}

func (b *backendStub) ResolvePayID(ctx context.Context, payIDType domain.PayIDType, value string) (*domain.PayeeResolution, error) {
	if value != "+61412345678" {
		return nil, &nppclient.APIError{StatusCode: http.StatusNotFound, Message: "PayID not found: " + value}
	}
	return &domain.PayeeResolution{PayIDType: payIDType, Value: value, DisplayName: "John Smith"}, nil
}

func (b *backendStub) ListPayIDs(ctx context.Context) ([]domain.PayeeResolution, error) {
	return []domain.PayeeResolution{{PayIDType: domain.PayIDPhone, Value: "+61412345678", DisplayName: "John Smith"}}, nil
}

func (b *backendStub) ListMessages(ctx context.Context) ([]domain.MessageRecord, error) {
	return nil, nil
}

func (b *backendStub) ReturnPayment(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	return &domain.PaymentRecord{ID: id, PaymentID: "p1", Amount: decimal.Zero, Status: domain.StatusReturned}, nil
}

func (b *backendStub) GetPayment(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	return &domain.PaymentRecord{ID: id, PaymentID: "p1", Amount: decimal.Zero, Status: domain.StatusInitiated}, nil
}

func newTestServer(t *testing.T, backend *backendStub) *httptest.Server {
	t.Helper()
	deps := app.Dependencies{
		Backend: backend,
		Streams: subscription.SourceFunc(func(ctx context.Context, paymentID string) (subscription.Stream, error) {
			return &idleStream{closed: make(chan struct{})}, nil
		}),
	}
	workspaces := app.NewWorkspaces(deps, nil)
	srv := httptest.NewServer(NewRouter(NewHandler(workspaces, backend), []string{"http://localhost:3000"}))
	t.Cleanup(func() {
		srv.Close()
		workspaces.Close()
	})
	return srv
}

func do(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	decoded := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("failed to decode %s: %v", raw, err)
		}
	}
	return resp, decoded
}

func createWorkspace(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/workspaces", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	id, _ := body["workspaceId"].(string)
	if id == "" || resp.Header.Get(WorkspaceHeader) != id {
		t.Fatalf("expected workspace id in body and header, got %v", body)
	}
	return srv.URL + "/workspaces/" + id + "/slots/send"
}

func session(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	s, ok := body["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a view with a session, got %v", body)
	}
	return s
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &backendStub{})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(raw) != "healthy" {
		t.Fatalf("expected healthy, got %d %q", resp.StatusCode, raw)
	}
}

func TestSubmitFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, &backendStub{})
	base := createWorkspace(t, srv)

	resp, body := do(t, http.MethodPut, base+"/form", map[string]string{"amount": "100.00", "payIdValue": "+61412345678"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from form update, got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, base+"/resolve", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected blur resolve to succeed, got %d %v", resp.StatusCode, body)
	}
	payee, _ := session(t, body)["resolvedPayee"].(map[string]interface{})
	if payee["displayName"] != "John Smith" {
		t.Fatalf("expected resolved payee, got %v", payee)
	}

	resp, body = do(t, http.MethodPost, base+"/submit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected submit to succeed, got %d %v", resp.StatusCode, body)
	}
	if body["live"] != true || session(t, body)["currentStatus"] != "INITIATED" {
		t.Fatalf("expected live tracking at INITIATED, got %v", body)
	}
	if steps, _ := body["progress"].([]interface{}); len(steps) != 4 {
		t.Fatalf("expected four progress steps, got %v", body["progress"])
	}

	resp, body = do(t, http.MethodPost, base+"/reset", nil)
	if resp.StatusCode != http.StatusOK || body["live"] != false {
		t.Fatalf("expected reset to stop tracking, got %d %v", resp.StatusCode, body)
	}
	if _, tracking := session(t, body)["paymentResult"]; tracking {
		t.Fatalf("expected no payment after reset, got %v", body)
	}
}

func TestErrorMapping(t *testing.T) {
	backend := &backendStub{submitErr: &nppclient.APIError{StatusCode: http.StatusBadRequest, Message: "Debtor account not found"}}
	srv := newTestServer(t, backend)
	base := createWorkspace(t, srv)

	resp, body := do(t, http.MethodPost, base+"/submit", nil)
	if resp.StatusCode != http.StatusBadRequest || body["kind"] != string(app.KindValidation) {
		t.Fatalf("expected 400 validation, got %d %v", resp.StatusCode, body)
	}

	do(t, http.MethodPut, base+"/form", map[string]string{"amount": "10", "payIdValue": "+61412345678"})
	resp, body = do(t, http.MethodPost, base+"/submit", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity || body["error"] != "Debtor account not found" {
		t.Fatalf("expected 422 with backend message, got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, base+"/resolve", map[string]string{"type": "PHONE", "value": "+61400000000"})
	if resp.StatusCode != http.StatusUnprocessableEntity || body["kind"] != string(app.KindResolution) {
		t.Fatalf("expected 422 resolution, got %d %v", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodPost, base+"/messages/abc/toggle", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad message id, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/workspaces/not-a-workspace/slots/send", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown workspace, got %d", resp.StatusCode)
	}
}

func TestSessionSurvivesRemount(t *testing.T) {
	srv := newTestServer(t, &backendStub{})
	base := createWorkspace(t, srv)

	do(t, http.MethodPost, base+"/mode", map[string]string{"mode": "bsb"})
	do(t, http.MethodPut, base+"/form", map[string]string{"creditorBsb": "062-000"})
	do(t, http.MethodPost, base+"/messages/4/toggle", nil)

	if resp, _ := do(t, http.MethodPost, base+"/unmount", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from unmount, got %d", resp.StatusCode)
	}
	resp, body := do(t, http.MethodPost, base+"/mount", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from mount, got %d", resp.StatusCode)
	}
	s := session(t, body)
	form, _ := s["form"].(map[string]interface{})
	ui, _ := s["ui"].(map[string]interface{})
	if s["mode"] != "bsb" || form["creditorBsb"] != "062-000" || ui["expandedMessageId"] != float64(4) {
		t.Fatalf("expected session restored on remount, got %v", s)
	}
}

func TestCatalogueRoutes(t *testing.T) {
	srv := newTestServer(t, &backendStub{})

	for _, path := range []string{"/payids", "/quick-payids", "/sender-accounts"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			t.Fatalf("expected JSON 200 from %s, got %d %s", path, resp.StatusCode, raw)
		}
	}
}
