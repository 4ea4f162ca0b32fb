// Package web exposes study sessions and source management as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/session"
	"github.com/conorfennell/knoldrill/internal/storage"
	"github.com/conorfennell/knoldrill/internal/sync"
)

// Sessions is the session manager as seen by the server.
type Sessions interface {
	Start(ctx context.Context, req session.StartRequest) (session.View, error)
	Get(id string) (session.View, error)
	Rate(ctx context.Context, id string, r domain.Rating) (session.View, error)
	Quit(ctx context.Context, id string) (session.View, error)
	Checkpoint(ctx context.Context, id string) (session.View, error)
}

// Syncer adds and reconciles item sources.
type Syncer interface {
	AddSource(ctx context.Context, path string) (*storage.Source, error)
	RunSync(ctx context.Context) ([]sync.Report, error)
}

// Store is the read and delete access the server needs.
type Store interface {
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error
	ListConfidenceProgress(ctx context.Context) ([]confidence.Progress, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	sessions Sessions
	syncer   Syncer
	store    Store
	router   *http.ServeMux
	logger   *slog.Logger
}

// NewServer creates and configures a new server. A nil logger uses slog.Default().
func NewServer(sessions Sessions, syncer Syncer, store Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		syncer:   syncer,
		store:    store,
		router:   http.NewServeMux(),
		logger:   logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("POST /sessions", s.handleStartSession())
	s.router.HandleFunc("GET /sessions/{id}", s.handleGetSession())
	s.router.HandleFunc("POST /sessions/{id}/ratings", s.handleRate())
	s.router.HandleFunc("POST /sessions/{id}/quit", s.handleQuit())
	s.router.HandleFunc("POST /sessions/{id}/checkpoint", s.handleCheckpoint())

	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())

	s.router.HandleFunc("GET /progress/confidence", s.handleListConfidence())
}

type startRequest struct {
	Mode       string   `json:"mode"`
	ProgressID string   `json:"progressId"`
	Name       string   `json:"name"`
	Containers []int64  `json:"containers"`
	Tags       []string `json:"tags"`
}

type rateRequest struct {
	Rating domain.Rating `json:"rating"`
}

type sourceRequest struct {
	Path string `json:"path"`
}

type sourceView struct {
	ID          int64              `json:"id"`
	Type        storage.SourceType `json:"type"`
	Path        string             `json:"path"`
	LastScanned *time.Time         `json:"lastScanned,omitempty"`
}

type reportView struct {
	SourceID int64    `json:"sourceId"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		mode, err := session.ParseMode(req.Mode)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		view, err := s.sessions.Start(r.Context(), session.StartRequest{
			Mode:       mode,
			ProgressID: req.ProgressID,
			Name:       req.Name,
			Containers: req.Containers,
			Tags:       req.Tags,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		view, err := s.sessions.Rate(r.Context(), r.PathValue("id"), req.Rating)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleQuit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.sessions.Quit(r.Context(), r.PathValue("id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleCheckpoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.sessions.Checkpoint(r.Context(), r.PathValue("id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.store.GetAllSources(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lo.Map(sources, func(src storage.Source, _ int) sourceView {
			return toSourceView(src)
		}))
	}
}

func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		if req.Path == "" {
			s.writeError(w, r, http.StatusBadRequest, errors.New("path cannot be empty"))
			return
		}
		src, err := s.syncer.AddSource(r.Context(), req.Path)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSourceView(*src))
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, errors.New("invalid source ID"))
			return
		}
		if err := s.store.DeleteSource(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and returns the per-source reports.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.syncer.RunSync(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lo.Map(reports, func(rep sync.Report, _ int) reportView {
			return reportView{
				SourceID: rep.SourceID,
				Path:     rep.Path,
				Parsed:   rep.Parsed,
				Deleted:  rep.Deleted,
				Errors:   lo.Map(rep.Errors, func(e error, _ int) string { return e.Error() }),
			}
		}))
	}
}

func (s *Server) handleListConfidence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.store.ListConfidenceProgress(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if list == nil {
			list = []confidence.Progress{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func toSourceView(src storage.Source) sourceView {
	v := sourceView{ID: src.ID, Type: src.Type, Path: src.Path}
	if src.LastScanned.Valid {
		t := src.LastScanned.Time
		v.LastScanned = &t
	}
	return v
}

// fail maps domain errors to status codes. An empty study set is not a
// failure and is reported with 200 and a message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNothingDue), errors.Is(err, domain.ErrNothingToStudy):
		writeJSON(w, http.StatusOK, messageResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound):
		s.writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidRating), errors.Is(err, domain.ErrUnknownMode):
		s.writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrSessionFinished):
		s.writeError(w, r, http.StatusConflict, err)
	default:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status < http.StatusInternalServerError {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
