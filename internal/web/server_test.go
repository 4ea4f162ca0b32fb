package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	gosync "sync"
	"testing"

	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/grading"
	"github.com/conorfennell/knoldrill/internal/outbox"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
	"github.com/conorfennell/knoldrill/internal/session"
	"github.com/conorfennell/knoldrill/internal/storage"
	"github.com/conorfennell/knoldrill/internal/sync"
)

type recordingPublisher struct {
	mu      gosync.Mutex
	records []outbox.Record
}

func (p *recordingPublisher) Enqueue(r outbox.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
	return nil
}

func (p *recordingPublisher) kinds() []outbox.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []outbox.Kind
	for _, r := range p.records {
		out = append(out, r.Kind)
	}
	return out
}

type testEnv struct {
	srv   *Server
	db    *storage.DB
	pub   *recordingPublisher
	notes string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	mgr := session.NewManager(db, pub, session.Config{
		ReinsertDistance: 2,
		Intervals:        confidence.DefaultIntervals(),
		Review:           reviewdue.DefaultConfig(),
	},
		session.WithGrader(func(c reviewdue.Config) reviewdue.Grader { return grading.New(c) }),
		session.WithLogger(logger),
	)
	syncer := &sync.Syncer{Store: db, ReposDir: t.TempDir()}

	notes := t.TempDir()
	content := "Q: What is a goroutine?\nA: A lightweight thread\n---\nQ: What is a channel?\nA: A typed conduit\n"
	if err := os.WriteFile(filepath.Join(notes, "go.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write notes: %v", err)
	}
	return &testEnv{srv: NewServer(mgr, syncer, db, logger), db: db, pub: pub, notes: notes}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) addAndSync(t *testing.T) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/sources", map[string]string{"path": e.notes})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 adding a source, but got %d: %s", rec.Code, rec.Body)
	}
	src := decode[sourceView](t, rec)

	rec = e.do(t, http.MethodPost, "/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from sync, but got %d: %s", rec.Code, rec.Body)
	}
	reports := decode[[]reportView](t, rec)
	if len(reports) != 1 || reports[0].Parsed != 2 {
		t.Fatalf("Expected one report with 2 parsed items, but got %+v", reports)
	}
	return src.ID
}

func TestSources(t *testing.T) {
	e := newTestEnv(t)
	id := e.addAndSync(t)

	rec := e.do(t, http.MethodGet, "/sources", nil)
	sources := decode[[]sourceView](t, rec)
	if len(sources) != 1 || sources[0].Path != e.notes || sources[0].Type != storage.SourceLocal {
		t.Fatalf("Unexpected sources: %+v", sources)
	}
	if sources[0].LastScanned == nil {
		t.Error("Expected last scanned to be set after sync")
	}

	if rec := e.do(t, http.MethodPost, "/sources", map[string]string{"path": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty path, but got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, "/sources/abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad id, but got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, "/sources/"+strconv.FormatInt(id, 10), nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 deleting a source, but got %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/sources", nil)
	if got := decode[[]sourceView](t, rec); len(got) != 0 {
		t.Errorf("Expected no sources after delete, but got %+v", got)
	}
}

func TestConfidenceSessionFlow(t *testing.T) {
	e := newTestEnv(t)
	e.addAndSync(t)

	rec := e.do(t, http.MethodPost, "/sessions", map[string]any{"mode": "confidence", "name": "go"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, but got %d: %s", rec.Code, rec.Body)
	}
	view := decode[session.View](t, rec)
	if view.Current == nil || view.Status != session.StatusActive {
		t.Fatalf("Expected an active session with a current item, but got %+v", view)
	}
	first := view.Current.ID

	rec = e.do(t, http.MethodPost, "/sessions/"+view.ID+"/ratings", map[string]string{"rating": "good"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 rating, but got %d: %s", rec.Code, rec.Body)
	}
	view = decode[session.View](t, rec)
	if view.Current == nil || view.Current.ID == first {
		t.Errorf("Expected the next item after rating, but got %+v", view.Current)
	}
	if view.Summary.Answered != 1 || view.Summary.Correct != 1 {
		t.Errorf("Expected one correct answer, but got %+v", view.Summary)
	}

	rec = e.do(t, http.MethodPost, "/sessions/"+view.ID+"/ratings", map[string]string{"rating": "meh"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown rating, but got %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/sessions/"+view.ID+"/quit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 quitting, but got %d: %s", rec.Code, rec.Body)
	}
	if got := decode[session.View](t, rec); got.Status != session.StatusQuit {
		t.Errorf("Expected status quit, but got %s", got.Status)
	}

	rec = e.do(t, http.MethodPost, "/sessions/"+view.ID+"/ratings", map[string]string{"rating": "good"})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 rating a quit session, but got %d", rec.Code)
	}

	kinds := e.pub.kinds()
	if len(kinds) != 2 || kinds[0] != outbox.KindConfidenceProgress || kinds[1] != outbox.KindSessionResults {
		t.Errorf("Expected progress then results to be published, but got %v", kinds)
	}
}

func TestCheckpoint(t *testing.T) {
	e := newTestEnv(t)
	e.addAndSync(t)

	view := decode[session.View](t, e.do(t, http.MethodPost, "/sessions", map[string]any{"mode": "mastery"}))
	rec := e.do(t, http.MethodPost, "/sessions/"+view.ID+"/checkpoint", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d: %s", rec.Code, rec.Body)
	}
	if got := decode[session.View](t, rec); got.Status != session.StatusActive {
		t.Errorf("Expected checkpoint to keep the session active, but got %s", got.Status)
	}
	if kinds := e.pub.kinds(); len(kinds) != 1 || kinds[0] != outbox.KindMasteryProgress {
		t.Errorf("Expected one mastery snapshot, but got %v", kinds)
	}
}

func TestSessionErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown session", http.MethodGet, "/sessions/nope", nil, http.StatusNotFound},
		{"rate unknown session", http.MethodPost, "/sessions/nope/ratings", map[string]string{"rating": "good"}, http.StatusNotFound},
		{"unknown mode", http.MethodPost, "/sessions", map[string]string{"mode": "cram"}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/sessions", "[", http.StatusBadRequest},
		{"nothing to study", http.MethodPost, "/sessions", map[string]string{"mode": "due"}, http.StatusOK},
		{"wrong method", http.MethodPut, "/sessions", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, but got %d: %s", tt.status, rec.Code, rec.Body)
			}
		})
	}

	rec := e.do(t, http.MethodPost, "/sessions", map[string]string{"mode": "due"})
	if msg := decode[messageResponse](t, rec); msg.Message == "" {
		t.Error("Expected a message for an empty study set")
	}
}

func TestListConfidenceProgress(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/progress/confidence", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("Expected an empty list, but got %d %q", rec.Code, rec.Body)
	}
}
