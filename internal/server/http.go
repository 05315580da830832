// Package server exposes the core's JSON HTTP surface: ingest, ask,
// ask/stream, health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v57/github"

	"github.com/ragcore-dev/docrag/internal/answer"
	"github.com/ragcore-dev/docrag/internal/docmodel"
	"github.com/ragcore-dev/docrag/internal/ingestion"
	"github.com/ragcore-dev/docrag/internal/sourcefetcher"
	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

// Checker reports whether a dependency the /health endpoint cares about is
// reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// Config holds configuration for the HTTP server.
type Config struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string
}

// Server wires the ingestion and answer orchestrators to the HTTP surface.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	ingestionOrch *ingestion.Orchestrator
	jobs          ingestion.JobStore
	answerOrch    *answer.Orchestrator
	ghClient      *github.Client

	store    Checker
	embedder Checker
	llm      Checker
}

// Deps collects Server's external dependencies.
type Deps struct {
	IngestionOrchestrator *ingestion.Orchestrator
	Jobs                  ingestion.JobStore
	AnswerOrchestrator    *answer.Orchestrator
	GitHubClient          *github.Client
	Store                 Checker
	Embedder              Checker
	LLM                   Checker
}

// New creates a Server and mounts its routes.
func New(cfg Config, deps Deps) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:        logger,
		ingestionOrch: deps.IngestionOrchestrator,
		jobs:          deps.Jobs,
		answerOrch:    deps.AnswerOrchestrator,
		ghClient:      deps.GitHubClient,
		store:         deps.Store,
		embedder:      deps.Embedder,
		llm:           deps.LLM,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.Post("/ingest", s.handleIngest)
	router.Post("/ask", s.handleAsk)
	router.Post("/ask/stream", s.handleAskStream)
	router.Get("/health", s.handleHealth)

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // streaming LLM responses run long
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

// Router returns the underlying chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// sourceSpec is the request body's source_spec field: the union of what
// each fetcher kind needs to be constructed.
type sourceSpec struct {
	Owner    string   `json:"owner"`
	Repo     string   `json:"repo"`
	Ref      string   `json:"ref,omitempty"`
	CloneURL string   `json:"clone_url,omitempty"`
	WikiName string   `json:"wiki_name,omitempty"`
	RootURL  string   `json:"root_url,omitempty"`
	State    string   `json:"state,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	// RenderJS requests headless-browser rendering for wiki_public sources
	// whose pages are populated by client-side JavaScript.
	RenderJS bool `json:"render_js,omitempty"`
}

type ingestRequest struct {
	SourceType string     `json:"source_type"`
	SourceSpec sourceSpec `json:"source_spec"`
}

type ingestResponse struct {
	JobID  string           `json:"job_id"`
	Report ingestion.Report `json:"report"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	fetcher, err := s.buildFetcher(req.SourceType, req.SourceSpec)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_source", err.Error())
		return
	}
	if closer, ok := fetcher.(io.Closer); ok {
		defer closer.Close()
	}

	job, err := ingestion.RunTracked(r.Context(), s.ingestionOrch, s.jobs, req.SourceType, req.SourceSpec.Owner+"/"+req.SourceSpec.Repo, fetcher)
	if err != nil && job == nil {
		writeError(w, http.StatusInternalServerError, "ingest_failed", "ingestion could not start")
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{JobID: job.ID.String(), Report: job.Report})
}

// buildFetcher selects and constructs a sourcefetcher.Fetcher by source_type.
func (s *Server) buildFetcher(sourceType string, spec sourceSpec) (sourcefetcher.Fetcher, error) {
	switch sourceType {
	case "git":
		if s.ghClient == nil {
			return nil, errors.New("git source requires a configured GitHub client")
		}
		if spec.Owner == "" || spec.Repo == "" {
			return nil, errors.New("git source requires owner and repo")
		}
		return sourcefetcher.NewGitFetcher(s.ghClient, spec.Owner, spec.Repo, spec.Ref, sourcefetcher.GitConfig{}), nil
	case "wiki_public":
		if spec.RootURL == "" {
			return nil, errors.New("wiki_public source requires root_url")
		}
		return sourcefetcher.NewWikiPublicFetcher(http.DefaultClient, spec.RootURL, spec.WikiName, sourcefetcher.WikiPublicConfig{RenderJS: spec.RenderJS}), nil
	case "wiki_private":
		if spec.CloneURL == "" {
			return nil, errors.New("wiki_private source requires clone_url")
		}
		return sourcefetcher.NewWikiPrivateFetcher(spec.CloneURL, spec.WikiName), nil
	case "issues":
		if s.ghClient == nil {
			return nil, errors.New("issues source requires a configured GitHub client")
		}
		if spec.Owner == "" || spec.Repo == "" {
			return nil, errors.New("issues source requires owner and repo")
		}
		return sourcefetcher.NewIssuesFetcher(s.ghClient, spec.Owner, spec.Repo, sourcefetcher.IssuesConfig{State: spec.State, Labels: spec.Labels}), nil
	default:
		return nil, fmt.Errorf("unsupported source_type %q", sourceType)
	}
}

type askRequest struct {
	ConversationID string            `json:"conversation_id,omitempty"`
	Question       string            `json:"question"`
	TopK           int               `json:"top_k,omitempty"`
	Filter         map[string]string `json:"filter,omitempty"`
}

type askResponse struct {
	ConversationID string               `json:"conversation_id"`
	Answer         string               `json:"answer"`
	Citations      []docmodel.Citation `json:"citations"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}

	result, err := s.answerOrch.Ask(r.Context(), req.ConversationID, req.Question, vectorstore.Filter(req.Filter))
	if err != nil {
		s.logger.Error("ask failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ask_failed", "could not generate an answer")
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		ConversationID: result.ConversationID,
		Answer:         result.Text,
		Citations:      result.Citations,
	})
}

// streamFrame is one line of the /ask/stream response: either a token
// delta or the terminal frame carrying citations.
type streamFrame struct {
	DeltaText      string              `json:"delta_text,omitempty"`
	Done           bool                `json:"done,omitempty"`
	Citations      []docmodel.Citation `json:"citations,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Error          string              `json:"error,omitempty"`
}

func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}

	events, err := s.answerOrch.AskStream(r.Context(), req.ConversationID, req.Question, vectorstore.Filter(req.Filter))
	if err != nil {
		s.logger.Error("ask/stream failed to start", "error", err)
		writeError(w, http.StatusInternalServerError, "ask_failed", "could not start generation")
		return
	}

	flusher, ok := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	for ev := range events {
		if ev.Err != nil {
			_ = enc.Encode(streamFrame{Error: "generation interrupted"})
			if ok {
				flusher.Flush()
			}
			return
		}
		if ev.Done {
			_ = enc.Encode(streamFrame{Done: true, Citations: ev.Final.Citations, ConversationID: ev.Final.ConversationID})
			if ok {
				flusher.Flush()
			}
			return
		}
		_ = enc.Encode(streamFrame{DeltaText: ev.Token})
		if ok {
			flusher.Flush()
		}
	}
}

type componentStatus struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := map[string]componentStatus{
		"store":    checkComponent(ctx, s.store),
		"embedder": checkComponent(ctx, s.embedder),
		"llm":      checkComponent(ctx, s.llm),
	}

	status := "ok"
	for _, c := range components {
		if c.Status != "ok" {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: status, Components: components})
}

func checkComponent(ctx context.Context, c Checker) componentStatus {
	if c == nil {
		return componentStatus{Status: "unknown"}
	}
	if err := c.Check(ctx); err != nil {
		return componentStatus{Status: "unreachable"}
	}
	return componentStatus{Status: "ok"}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := false
			if len(allowedOrigins) == 0 {
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
