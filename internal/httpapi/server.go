package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"techcharades/internal/domain"
	"techcharades/internal/engine"
	"techcharades/internal/leaderboard"
	"techcharades/internal/obslog"
	"techcharades/internal/results"
	"techcharades/internal/review"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server exposes the game and review operations over HTTP. It owns no
// game logic: every route delegates to the engine or the review side.
type Server struct {
	r *chi.Mux

	games   *engine.Manager
	repo    results.Repository
	store   *review.Store
	matcher *review.Matcher
	board   *leaderboard.Board

	adminToken string
}

func New(games *engine.Manager, repo results.Repository, store *review.Store, matcher *review.Matcher, board *leaderboard.Board, adminToken string) *Server {
	s := &Server{
		r:          chi.NewRouter(),
		games:      games,
		repo:       repo,
		store:      store,
		matcher:    matcher,
		board:      board,
		adminToken: adminToken,
	}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(jsonContentType)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Post("/sessions/{id}/start", s.handleStart)
		r.Post("/sessions/{id}/submit", s.handleSubmit)
		r.Post("/sessions/{id}/input", s.handleInput)
		r.Get("/sessions/{id}", s.handleSnapshot)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/results", s.handleListResults)
			r.Post("/results/{id}/verify", s.handleVerify)
			r.Post("/batch-verify", s.handleBatchVerify)
			r.Get("/terms/export", s.handleExportTerms)
		})
	})

	// Websocket countdown feed; no timeout middleware here, the stream is
	// long-lived.
	s.r.Get("/ws/sessions/{id}", s.handleLiveFeed)

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s
}

func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Router exposes the internal router for tests.
func (s *Server) Router() chi.Router { return s.r }

// ------------------------------- game ----------------------------------

type createSessionReq struct {
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	snap, err := s.games.CreateSession(r.Context(), domain.Participant{Name: req.Name, StudentID: req.StudentID})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.games.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type textReq struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req textReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	snap, err := s.games.Submit(r.Context(), chi.URLParam(r, "id"), req.Text)
	switch {
	case errors.Is(err, engine.ErrInvalidTerm):
		// Round not consumed; the snapshot carries the error flag.
		writeJSON(w, http.StatusUnprocessableEntity, snap)
	case errors.Is(err, engine.ErrNotPlaying), errors.Is(err, engine.ErrSessionNotFound):
		writeEngineError(w, err)
	case err != nil && snap != nil:
		// Round consumed but the final persist failed; surface both.
		obslog.L().Error("submit_persist_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, snap)
	case err != nil:
		writeEngineError(w, err)
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req textReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	snap, err := s.games.UpdateInput(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.games.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		writeJSON(w, http.StatusOK, []leaderboard.Entry{})
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.board.Top(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "leaderboard_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ------------------------------- admin ---------------------------------

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	recs, err := s.repo.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	if recs == nil {
		recs = []*domain.ResultRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type verifyReq struct {
	Round    int    `json:"round"`
	Decision string `json:"decision"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	decision, ok := domain.ParseVerification(req.Decision)
	if !ok {
		writeError(w, http.StatusBadRequest, "decision must be accepted or rejected")
		return
	}
	rec, err := s.store.SetVerification(r.Context(), chi.URLParam(r, "id"), req.Round, decision)
	switch {
	case errors.Is(err, results.ErrNotFound):
		writeError(w, http.StatusNotFound, "record_not_found")
	case errors.Is(err, review.ErrRoundNotFound):
		writeError(w, http.StatusBadRequest, "round_not_found")
	case err != nil && rec != nil:
		// Optimistic view retained; the write failed.
		writeJSON(w, http.StatusInternalServerError, rec)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "verify_failed")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

type batchVerifyReq struct {
	Terms string `json:"terms"`
}

type batchVerifyRes struct {
	Scanned  int               `json:"scanned"`
	Updated  int               `json:"updated"`
	Failures map[string]string `json:"failures,omitempty"`
}

func (s *Server) handleBatchVerify(w http.ResponseWriter, r *http.Request) {
	var req batchVerifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	report, err := s.matcher.Run(r.Context(), req.Terms)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "batch_failed")
		return
	}
	res := batchVerifyRes{Scanned: report.Scanned, Updated: report.Updated}
	if len(report.Failures) > 0 {
		res.Failures = make(map[string]string, len(report.Failures))
		for id, ferr := range report.Failures {
			res.Failures[id] = ferr.Error()
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExportTerms(w http.ResponseWriter, r *http.Request) {
	recs, err := s.repo.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"terms": review.ExportPending(recs)})
}

// ---------------------------- middleware --------------------------------

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ helpers ---------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, engine.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "name_required")
	case errors.Is(err, engine.ErrAlreadyPlaying):
		writeError(w, http.StatusConflict, "already_playing")
	case errors.Is(err, engine.ErrNotPlaying):
		writeError(w, http.StatusConflict, "not_playing")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
