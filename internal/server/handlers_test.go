package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/michaelbrown/crucible/internal/artifact"
	"github.com/michaelbrown/crucible/internal/config"
	"github.com/michaelbrown/crucible/internal/sandbox"
	"github.com/michaelbrown/crucible/internal/storage"
	"github.com/michaelbrown/crucible/internal/storage/sqlite"
	"github.com/michaelbrown/crucible/internal/worker"
)

func testServer(t *testing.T) (*Server, func()) {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	artifacts, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}

	policy := sandbox.DefaultPolicy()
	runner := sandbox.NewRunner(policy, nil)
	pool := worker.NewPool(runner, 2, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	cfg := &config.Config{}
	cfg.RateLimit.GlobalRPS = 1000
	cfg.RateLimit.PerIPRPS = 1000
	cfg.RateLimit.PerIPBurst = 1000
	cfg.RateLimit.MaxConcurrent = 16

	s := New(cfg, policy, pool, store, artifacts, nil)

	cleanup := func() {
		cancel()
		pool.Wait()
		store.Close()
	}
	return s, cleanup
}

func postRun(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRun(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	rec := postRun(t, s, `{"source": "6 * 7"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Text != "42" {
		t.Errorf("Text = %q, want %q", resp.Text, "42")
	}
	if resp.Status != storage.StatusCompleted {
		t.Errorf("Status = %q, want %q", resp.Status, storage.StatusCompleted)
	}
	if resp.Error != nil {
		t.Errorf("Error = %+v, want nil", resp.Error)
	}
	if resp.ID == "" {
		t.Error("expected a run ID")
	}
}

func TestCreateRunEmptySource(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	for _, body := range []string{`{}`, `{"source": "   "}`} {
		rec := postRun(t, s, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestCreateRunInvalidJSON(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	rec := postRun(t, s, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateRunFailure(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	rec := postRun(t, s, `{"source": "1 // 0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp runResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error == nil {
		t.Fatal("expected an error in the response")
	}
	if resp.Status != storage.StatusFailed {
		t.Errorf("Status = %q, want %q", resp.Status, storage.StatusFailed)
	}
}

func TestRunPersistedAndRetrievable(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	rec := postRun(t, s, `{"source": "print(\"hi\")"}`)
	var created runResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	s.router.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d", getRec.Code)
	}

	var run storage.Run
	if err := json.Unmarshal(getRec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decoding run: %v", err)
	}
	if run.Text != "hi\n" {
		t.Errorf("Text = %q, want %q", run.Text, "hi\n")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteRun(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	rec := postRun(t, s, `{"source": "1 + 1"}`)
	var created runResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	req := httptest.NewRequest(http.MethodDelete, "/api/runs/"+created.ID, nil)
	delRec := httptest.NewRecorder()
	s.router.ServeHTTP(delRec, req)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", delRec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	s.router.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", getRec.Code)
	}
}

func TestRunWithImage(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	source := `c = canvas.new(4, 4)
c.fill((255, 0, 0))`
	body, _ := json.Marshal(createRunRequest{Source: source})
	rec := postRun(t, s, string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp runResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ImageURL == "" {
		t.Fatal("expected an image URL")
	}

	req := httptest.NewRequest(http.MethodGet, resp.ImageURL, nil)
	imgRec := httptest.NewRecorder()
	s.router.ServeHTTP(imgRec, req)
	if imgRec.Code != http.StatusOK {
		t.Fatalf("image status = %d", imgRec.Code)
	}
	if ct := imgRec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if imgRec.Body.Len() == 0 {
		t.Error("empty image body")
	}
}

func TestListRuns(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	postRun(t, s, `{"source": "1"}`)
	postRun(t, s, `{"source": "1 // 0"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var runs []storage.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/runs?status=failed", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	json.Unmarshal(rec.Body.Bytes(), &runs)
	if len(runs) != 1 {
		t.Errorf("failed runs = %d, want 1", len(runs))
	}
}

func TestRateLimitRejects(t *testing.T) {
	s, cleanup := testServer(t)
	defer cleanup()

	// A limiter with no capacity rejects everything.
	s.limiter.global.SetLimit(0)
	s.limiter.global.SetBurst(0)

	rec := postRun(t, s, `{"source": "1"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}
