package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/martinscooper/lighteval/internal/aggregate"
	"github.com/martinscooper/lighteval/internal/config"
	"github.com/martinscooper/lighteval/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.Type = "memory"
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	run := &store.Run{
		ID:               "run-1",
		Model:            "gpt-4o-mini",
		Provider:         "openai",
		CreatedAt:        time.Unix(1700000000, 0).UTC(),
		DataParallel:     2,
		TensorParallel:   1,
		PipelineParallel: 1,
		WorldSize:        2,
		Tasks:            []string{"demo|qa|0|0"},
		Report: &aggregate.Report{
			Results: map[string]aggregate.TaskReport{
				"demo|qa|0": {Metrics: map[string]float64{"acc": 0.75}, Examples: 4},
			},
		},
	}
	if err := st.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	srv, err := NewServer(cfg, st)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func doRequest(t *testing.T, srv *Server, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	t.Setenv("LIGHTEVAL_API_KEY", "")
	t.Setenv("LIGHTEVAL_DISABLE_AUTH", "true")
	srv := newTestServer(t)

	w := doRequest(t, srv, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
}

func TestServer_ListAndGetRuns(t *testing.T) {
	t.Setenv("LIGHTEVAL_API_KEY", "")
	t.Setenv("LIGHTEVAL_DISABLE_AUTH", "true")
	srv := newTestServer(t)

	w := doRequest(t, srv, "/api/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var list struct {
		Runs []runSummary `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != "run-1" {
		t.Fatalf("runs: got %+v", list.Runs)
	}
	if list.Runs[0].Topology != "dp=2 tp=1 pp=1 world=2" {
		t.Fatalf("topology: got %q", list.Runs[0].Topology)
	}

	w = doRequest(t, srv, "/api/runs/run-1/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("report status: got %d, want 200", w.Code)
	}
	var rep aggregate.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rep.Results["demo|qa|0"].Metrics["acc"] != 0.75 {
		t.Fatalf("report: got %+v", rep)
	}

	w = doRequest(t, srv, "/api/runs/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing run status: got %d, want 404", w.Code)
	}
}

func TestServer_Leaderboard(t *testing.T) {
	t.Setenv("LIGHTEVAL_API_KEY", "")
	t.Setenv("LIGHTEVAL_DISABLE_AUTH", "true")
	srv := newTestServer(t)

	w := doRequest(t, srv, "/api/leaderboard?metric=acc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var out struct {
		Entries []store.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Entries) != 1 || out.Entries[0].Value != 0.75 {
		t.Fatalf("entries: got %+v", out.Entries)
	}
}

func TestServer_AuthRequired(t *testing.T) {
	t.Setenv("LIGHTEVAL_API_KEY", "secret")
	t.Setenv("LIGHTEVAL_DISABLE_AUTH", "")
	srv := newTestServer(t)

	w := doRequest(t, srv, "/api/runs", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no key: got %d, want 401", w.Code)
	}

	h := http.Header{}
	h.Set("X-API-Key", "wrong")
	if w := doRequest(t, srv, "/api/runs", h); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: got %d, want 401", w.Code)
	}

	h.Set("X-API-Key", "secret")
	if w := doRequest(t, srv, "/api/runs", h); w.Code != http.StatusOK {
		t.Fatalf("x-api-key: got %d, want 200", w.Code)
	}

	h = http.Header{}
	h.Set("Authorization", "Bearer secret")
	if w := doRequest(t, srv, "/api/runs", h); w.Code != http.StatusOK {
		t.Fatalf("bearer: got %d, want 200", w.Code)
	}
}

func TestNewServer_MissingAuthConfig(t *testing.T) {
	t.Setenv("LIGHTEVAL_API_KEY", "")
	t.Setenv("LIGHTEVAL_DISABLE_AUTH", "")

	cfg := &config.Config{}
	cfg.Storage.Type = "memory"
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if _, err := NewServer(cfg, st); err == nil {
		t.Fatalf("NewServer: expected auth configuration error")
	}
}

func TestNewServer_NilStore(t *testing.T) {
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Fatalf("NewServer: expected error")
	}
}
