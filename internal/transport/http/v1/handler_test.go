package v1

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/procureflow/agent/config"
	"github.com/procureflow/agent/internal/adapter/interpret"
	"github.com/procureflow/agent/internal/domain"
	"github.com/procureflow/agent/internal/engine"
	"github.com/procureflow/agent/internal/intent"
	"github.com/procureflow/agent/internal/policy"
	"github.com/procureflow/agent/internal/resolver"
	"github.com/procureflow/agent/internal/service"
	"github.com/procureflow/agent/internal/store"
	"github.com/procureflow/agent/internal/stream"
	"github.com/procureflow/agent/tests/helpers"
)

type staticBackend struct{}

func (staticBackend) Call(_ context.Context, _ string, _ map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type testHandler struct {
	*Handler
	store *store.SQLiteStore
}

func newTestHandler(t *testing.T) *testHandler {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := intent.DefaultRegistry()

	pol, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	broadcaster := stream.NewBroadcaster(st, logger)
	eng := engine.New(st, staticBackend{}, registry, broadcaster, logger)
	res := resolver.New(interpret.NewMockInterpreter(), registry, 0, logger)
	svc := service.New(st, res, registry, pol, eng, &config.Config{}, logger)

	return &testHandler{Handler: NewHandler(svc, broadcaster), store: st}
}

func seedRun(t *testing.T, st *store.SQLiteStore, runID string) {
	t.Helper()
	if err := st.CreateRun(context.Background(), &domain.Run{
		RunID:          runID,
		ConversationID: "c1",
		Request: domain.OperationRequest{
			IntentName:  "getPurchaseOrderStatus",
			Slots:       map[string]any{"poNumber": "4500000123"},
			RequestedAt: time.Now().UTC(),
		},
		Status:    domain.RunStatusPending,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListIntents(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/intents", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListIntents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Intents []domain.IntentDefinition `json:"intents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Intents) != 4 {
		t.Fatalf("expected 4 intents, got %d", len(resp.Intents))
	}
}

func TestPostMessageValidation(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages",
		strings.NewReader(`{"text":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.PostMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostMessageClarification(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages",
		strings.NewReader(`{"text":"change item 10 on PO 4500000123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.PostMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp service.MessageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Kind != service.MessageResultClarification {
		t.Fatalf("expected clarification, got %s (%s)", resp.Kind, resp.Reply)
	}
	if resp.RunID != "" {
		t.Fatal("clarification responses carry no run id")
	}
}

func TestGetRunNotFound(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/r1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("r1")

	if err := h.GetRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetRunSuccess(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	seedRun(t, h.store, "r1")

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/r1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("r1")

	if err := h.GetRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var run domain.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.RunID != "r1" || run.Status != domain.RunStatusPending {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestGetRunEventsNotFound(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/r1/events", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("r1")

	if err := h.GetRunEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetRunEventsSinceSeq(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	seedRun(t, h.store, "r1")

	for i := 1; i <= 3; i++ {
		if err := h.store.AppendStepEvent(context.Background(), &domain.StepEvent{
			RunID:     "r1",
			Seq:       int64(i),
			StepIndex: 1,
			PlanSize:  1,
			StepName:  "fetch_document",
			Outcome:   domain.StepOutcomeStarted,
			EmittedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("AppendStepEvent failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/r1/events?since_seq=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("r1")

	if err := h.GetRunEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Events []domain.StepEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[0].Seq != 2 {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestCancelRunNotFound(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs/r1/cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("r1")

	if err := h.CancelRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelRunAccepted(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)
	seedRun(t, h.store, "r1")

	req := httptest.NewRequest(http.MethodPost, "/v1/runs/r1/cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("r1")

	if err := h.CancelRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	run, err := h.store.GetRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != domain.RunStatusCancelled {
		t.Fatalf("expected cancelled, got %s", run.Status)
	}
}

func TestListRunsEmpty(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/c1/runs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.ListRuns(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Runs []domain.Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(resp.Runs))
	}
}
