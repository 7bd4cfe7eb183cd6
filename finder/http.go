package finder

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/deekay/kit"
)

// Router returns the HTTP API.
//
//	GET  /health
//	GET  /api/resolve?url=
//	POST /api/check        {"url": "..."}
//	GET  /api/candidates?url=
//	GET  /api/digest?url=
//	GET  /api/passes?limit=
//
// mws run after panic recovery and request logging.
func (s *Service) Router(mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(kit.RequestLogger(s.logger))
	r.Use(mws...)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/resolve", s.handleResolve)
		r.Post("/check", s.handleCheck)
		r.Get("/candidates", s.handleCandidates)
		r.Get("/digest", s.handleDigest)
		r.Get("/passes", s.handlePasses)
	})
	return r
}

func (s *Service) handleResolve(w http.ResponseWriter, r *http.Request) {
	out, err := s.Resolve(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	out, err := s.Check(r.Context(), req.URL)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			// The page itself could not be loaded.
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleCandidates(w http.ResponseWriter, r *http.Request) {
	list, err := s.Candidates(r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": list})
}

func (s *Service) handleDigest(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	writeJSON(w, http.StatusOK, Digest(u))
}

func (s *Service) handlePasses(w http.ResponseWriter, r *http.Request) {
	passes, err := s.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "finder: list passes", "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, passes)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoInspector), errors.Is(err, ErrNoHistory):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("finder: write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
