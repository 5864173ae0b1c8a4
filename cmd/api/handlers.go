package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/reporubric/internal/assessor"
	"github.com/seanblong/reporubric/internal/rubric"
	"github.com/seanblong/reporubric/internal/source"
	"github.com/seanblong/reporubric/internal/store"
)

const (
	maxBodyBytes     = 1 << 20
	analyzeTimeout   = 5 * time.Minute
	selectTimeout    = 60 * time.Second
	lookupTimeout    = 5 * time.Second
	defaultRetryWait = 60
)

type server struct {
	svc  *assessor.Service
	ping func(ctx context.Context) error
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("POST /select-files", s.selectFiles)
	mux.HandleFunc("POST /analyze", s.analyze)
	mux.HandleFunc("GET /assessments", s.listAssessments)
	mux.HandleFunc("GET /assessments/compare", s.compare)
	mux.HandleFunc("GET /assessments/{id}", s.getAssessment)
	mux.HandleFunc("GET /repos/{owner}/{name}/tree", s.tree)
	return mux
}

type errorBody struct {
	Success    *bool    `json:"success,omitempty"`
	Error      string   `json:"error"`
	RetryAfter int      `json:"retryAfter,omitempty"`
	Details    []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps pipeline errors onto HTTP statuses. Host rate limits
// become 429 with a Retry-After header.
func writeError(w http.ResponseWriter, r *http.Request, err error, body errorBody) {
	status := http.StatusInternalServerError
	body.Error = err.Error()

	var hErr *source.HostError
	var vErr *rubric.ValidationError
	switch {
	case errors.As(err, &hErr):
		status = hErr.Status
		if hErr.RateLimited() {
			body.Error = "GitHub rate limit exceeded"
			body.RetryAfter = int(math.Ceil(hErr.RetryAfter.Seconds()))
			if body.RetryAfter <= 0 {
				body.RetryAfter = defaultRetryWait
			}
			w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
		} else {
			body.Error = hErr.Message
		}
	case errors.As(err, &vErr):
		status = http.StatusUnprocessableEntity
		body.Error = "rubric validation failed"
		for _, fe := range vErr.Errors {
			body.Details = append(body.Details, fe.String())
		}
	case errors.Is(err, assessor.ErrMissingRepoURL),
		errors.Is(err, assessor.ErrNoContent),
		errors.Is(err, source.ErrInvalidURL):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, source.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rubric.ErrUnparseable):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		hlog.FromRequest(r).Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, r, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) selectFiles(w http.ResponseWriter, r *http.Request) {
	failed := false
	var req struct {
		RepoURL string `json:"repoUrl"`
	}
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Success: &failed, Error: "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), selectTimeout)
	defer cancel()
	sel, err := s.svc.SelectFiles(ctx, req.RepoURL)
	if err != nil {
		writeError(w, r, err, errorBody{Success: &failed})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "data": sel})
}

func (s *server) analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req assessor.Request
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()
	res, err := s.svc.Assess(ctx, req)
	if err != nil {
		writeError(w, r, err, errorBody{})
		return
	}
	writeJSON(w, r, http.StatusOK, res)

	hlog.FromRequest(r).Info().
		Str("repo", req.RepoURL).
		Str("assessment", res.AssessmentID).
		Bool("cached", res.Cached).
		Dur("dur", time.Since(start)).
		Msg("served")
}

func (s *server) listAssessments(w http.ResponseWriter, r *http.Request) {
	opt := store.ListOpts{RepoURL: r.URL.Query().Get("repoUrl")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, r, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		opt.Limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	list, err := s.svc.List(ctx, opt)
	if err != nil {
		writeError(w, r, err, errorBody{})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"assessments": list})
}

func (s *server) getAssessment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	a, err := s.svc.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, errorBody{})
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *server) compare(w http.ResponseWriter, r *http.Request) {
	base, head := r.URL.Query().Get("base"), r.URL.Query().Get("head")
	if base == "" || head == "" {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Error: "base and head are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	c, err := s.svc.Compare(ctx, base, head)
	if err != nil {
		writeError(w, r, err, errorBody{})
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *server) tree(w http.ResponseWriter, r *http.Request) {
	repoURL := "https://github.com/" + r.PathValue("owner") + "/" + r.PathValue("name")

	ctx, cancel := context.WithTimeout(r.Context(), selectTimeout)
	defer cancel()
	t, err := s.svc.Tree(ctx, repoURL, r.URL.Query().Get("sha"))
	if err != nil {
		writeError(w, r, err, errorBody{})
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}
