package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	mockbroker "github.com/shcorya/distributed-workers/internal/broker/mock"
	"github.com/shcorya/distributed-workers/internal/domain"
	mockevents "github.com/shcorya/distributed-workers/internal/events/mock"
	"github.com/shcorya/distributed-workers/internal/processor"
	mockrepo "github.com/shcorya/distributed-workers/internal/repository/mock"
	"github.com/shcorya/distributed-workers/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter() (*gin.Engine, *mockbroker.Broker, *mockrepo.MockResultRepository) {
	b := mockbroker.NewBroker()
	repo := mockrepo.NewMockResultRepository()
	logger := zap.NewNop()

	router := NewRouter(&RouterDeps{
		SubmitUC:       usecase.NewSubmitJobUsecase(b, logger),
		GetJobUC:       usecase.NewGetJobUsecase(b, repo, time.Second, logger),
		Logger:         logger,
		MaxBodyBytes:   64,
		StreamInterval: 10 * time.Millisecond,
		HealthChecks:   map[string]Pinger{"broker": b, "store": repo},
	})

	return router, b, repo
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// processNext plays the worker's part for the oldest ready job.
func processNext(t *testing.T, b *mockbroker.Broker, repo *mockrepo.MockResultRepository) {
	t.Helper()
	proc, err := processor.NewHashProcessor(processor.AlgorithmMD5, 0, 0)
	if err != nil {
		t.Fatalf("processor: %v", err)
	}
	uc := usecase.NewProcessJobUsecase(b, repo, proc, mockevents.NewMockPublisher(), time.Second, zap.NewNop())

	job, err := b.Reserve(context.Background())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := uc.Execute(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
}

func TestSubmitHandler_Success(t *testing.T) {
	router, b, _ := setupTestRouter()

	w := do(router, http.MethodPost, "/", `{"x":1}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "added job 1 to queue" {
		t.Errorf("unexpected body %q", got)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 queued job, got %d", b.Len())
	}
}

func TestSubmitHandler_InvalidJSON(t *testing.T) {
	router, b, _ := setupTestRouter()

	for _, body := range []string{`{"x":`, `hello`, ``} {
		w := do(router, http.MethodPost, "/", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected status 400, got %d: %s", body, w.Code, w.Body.String())
		}
	}
	if b.Len() != 0 {
		t.Errorf("expected nothing enqueued, got %d", b.Len())
	}
}

func TestSubmitHandler_TooLarge(t *testing.T) {
	router, _, _ := setupTestRouter()

	w := do(router, http.MethodPost, "/", `{"data":"`+strings.Repeat("a", 100)+`"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", w.Code)
	}
}

func TestSubmitHandler_BrokerDown(t *testing.T) {
	router, b, _ := setupTestRouter()
	b.EnqueueFn = func(ctx context.Context, payload []byte) error {
		return domain.ErrBrokerUnavailable
	}

	w := do(router, http.MethodPost, "/", `{"x":1}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "unavailable") {
		t.Errorf("internal error leaked to client: %s", w.Body.String())
	}
}

// Test: a job is reported from the broker while in flight and from the
// result store once completed.
func TestJobLifecycle(t *testing.T) {
	router, b, repo := setupTestRouter()

	w := do(router, http.MethodPost, "/", `{"x":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var stats domain.JobStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to unmarshal stats: %v", err)
	}
	if stats.ID != 1 || stats.State != domain.StateReady {
		t.Errorf("unexpected stats: %+v", stats)
	}

	processNext(t, b, repo)

	w = do(router, http.MethodGet, "/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var result domain.JobResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result.ID != 1 {
		t.Errorf("expected id 1, got %d", result.ID)
	}
	if result.Outcome != "ac3ef48caa08fa3ed5e025da69edc645" {
		t.Errorf("unexpected outcome %s", result.Outcome)
	}
	if string(result.Payload) != `{"x":1}` {
		t.Errorf("unexpected payload %s", result.Payload)
	}
}

func TestGetByIDHandler_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter()

	w := do(router, http.MethodGet, "/999", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetByIDHandler_InvalidID(t *testing.T) {
	router, _, _ := setupTestRouter()

	for _, id := range []string{"abc", "0", "-1", "1.5"} {
		w := do(router, http.MethodGet, "/"+id, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: expected status 400, got %d", id, w.Code)
		}
	}
}

func TestGetByIDHandler_BackendDown(t *testing.T) {
	router, b, _ := setupTestRouter()
	b.StatsOfFn = func(ctx context.Context, id domain.JobID) error {
		return domain.ErrBrokerUnavailable
	}

	w := do(router, http.MethodGet, "/1", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router, _, _ := setupTestRouter()

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/"},
		{http.MethodDelete, "/"},
		{http.MethodPost, "/1"},
		{http.MethodDelete, "/1"},
	}
	for _, tt := range tests {
		w := do(router, tt.method, tt.path, "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status 405, got %d", tt.method, tt.path, w.Code)
		}
	}
}

func TestResponsesAreNotCached(t *testing.T) {
	router, _, _ := setupTestRouter()

	for _, w := range []*httptest.ResponseRecorder{
		do(router, http.MethodPost, "/", `{"x":1}`),
		do(router, http.MethodGet, "/1", ""),
		do(router, http.MethodGet, "/999", ""),
		do(router, http.MethodPut, "/", ""),
	} {
		if got := w.Header().Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
			t.Errorf("status %d: unexpected Cache-Control %q", w.Code, got)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("status %d: missing X-Request-ID", w.Code)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	router, b, _ := setupTestRouter()

	w := do(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	b.PingFn = func(ctx context.Context) error { return domain.ErrBrokerUnavailable }
	w = do(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	var resp struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Services["broker"] != "unavailable" || resp.Services["store"] != "ok" {
		t.Errorf("unexpected services: %v", resp.Services)
	}
}

func TestStream_ClosesOnCompletion(t *testing.T) {
	router, b, repo := setupTestRouter()
	srv := httptest.NewServer(router)
	defer srv.Close()

	do(router, http.MethodPost, "/", `{"x":1}`)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first["state"] != string(domain.StateReady) {
		t.Errorf("expected ready stats first, got %v", first)
	}

	processNext(t, b, repo)

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("stream closed before the result arrived: %v", err)
		}
		if _, ok := msg["outcome"]; ok {
			break
		}
	}

	// The server closes the stream after the result.
	var extra map[string]any
	if err := conn.ReadJSON(&extra); err == nil {
		t.Errorf("expected stream to close, got %v", extra)
	}
}

// Test: a stream outlives the server's write timeout.
func TestStream_OutlivesServerWriteTimeout(t *testing.T) {
	router, _, _ := setupTestRouter()
	srv := httptest.NewUnstartedServer(router)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	do(router, http.MethodPost, "/", `{"x":1}`)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// At a 10ms interval, 40 updates span well past the write timeout.
	for i := 0; i < 40; i++ {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("stream broke after %d updates: %v", i, err)
		}
		if msg["state"] != string(domain.StateReady) {
			t.Fatalf("unexpected update %v", msg)
		}
	}
}
