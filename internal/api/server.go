// Package api exposes the knowledge base over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/faqbot/faqbot/internal/domain"
	"github.com/faqbot/faqbot/internal/log"
	"github.com/faqbot/faqbot/internal/querylog"
	"github.com/faqbot/faqbot/internal/resolver"
	"github.com/faqbot/faqbot/internal/store"
)

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown.
	shutdownTimeout = 10 * time.Second

	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second

	defaultTopLimit = 10
	maxTopLimit     = 100
)

// Server handles HTTP requests for the knowledge base API
type Server struct {
	store    *store.Store
	resolver *resolver.Resolver
	recorder *querylog.Recorder
	logger   log.Logger
	addr     string
}

// New creates a new API server
func New(s *store.Store, res *resolver.Resolver, rec *querylog.Recorder, logger log.Logger, addr string) *Server {
	return &Server{store: s, resolver: res, recorder: rec, logger: logger, addr: addr}
}

// Handler returns the routed handler with middleware applied.
// Middleware order: recovery → logging → CORS → routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Knowledge base
	mux.HandleFunc("POST /kb", s.addRecord)
	mux.HandleFunc("GET /kb/search", s.searchRecords)

	// Chat
	mux.HandleFunc("POST /chat", s.chat)

	// Analytics
	mux.HandleFunc("GET /analytics/top-queries", s.topQueries)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return chain(mux, s.recoveryMiddleware, s.loggingMiddleware, withCORS)
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// AddRecordRequest is the request body for adding a record
type AddRecordRequest struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Tags     []string `json:"tags,omitempty"`
	Source   string   `json:"source,omitempty"`
}

func (s *Server) addRecord(w http.ResponseWriter, r *http.Request) {
	var req AddRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.store.Add(r.Context(), req.Question, req.Answer, req.Tags, req.Source)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// SearchResponse is the response for GET /kb/search
type SearchResponse struct {
	Query   string                `json:"query"`
	Tags    []string              `json:"tags,omitempty"`
	Results []domain.ScoredRecord `json:"results"`
}

func (s *Server) searchRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	tags := splitTags(r.URL.Query().Get("tags"))

	if query == "" && len(tags) == 0 {
		writeError(w, http.StatusBadRequest, "query parameter 'q' or 'tags' is required")
		return
	}

	resp := SearchResponse{Query: query, Tags: tags, Results: []domain.ScoredRecord{}}

	if query != "" {
		results, err := s.store.TextSearch(r.Context(), query)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Results = append(resp.Results, results...)
	} else {
		records, err := s.store.TagSearch(r.Context(), tags)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, rec := range records {
			resp.Results = append(resp.Results, domain.ScoredRecord{KnowledgeRecord: rec})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ChatRequest is the request body for POST /chat
type ChatRequest struct {
	Query string   `json:"query"`
	Tags  []string `json:"tags,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := s.resolver.Resolve(r.Context(), req.Query, req.Tags)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) topQueries(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxTopLimit)
	}

	counts, err := s.recorder.TopQueries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if counts == nil {
		counts = []domain.QueryCount{}
	}

	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": n})
}

// splitTags parses a comma-separated tag list, skipping blanks
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
