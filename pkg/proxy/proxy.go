package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/provider"
)

// maxBodySize bounds POST /generate request bodies.
const maxBodySize = 64 * 1024

// Server is the generation and usage proxy in front of the remote provider.
type Server struct {
	provider provider.Provider
	router   chi.Router
}

// New creates a proxy Server forwarding to p.
func New(p provider.Provider) *Server {
	s := &Server{
		provider: p,
		router:   chi.NewRouter(),
	}
	s.Register(s.router)
	return s
}

// Register adds the proxy endpoints to r.
func (s *Server) Register(r chi.Router) {
	r.Post("/generate", s.handleGenerate)
	r.Get("/usage", s.handleUsage)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Generate forwards prompt to the provider and returns the image reference.
// It is what POST /generate runs, exposed for in-process callers.
func (s *Server) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	url, err := s.provider.Generate(ctx, prompt)
	logger := logging.From(ctx).With("latency_ms", time.Since(start).Milliseconds())
	if err != nil {
		logger.Warn("generation failed", "error", err, "status", provider.StatusOf(err))
		return "", err
	}
	if url == "" {
		return "", &provider.Error{StatusCode: http.StatusBadGateway, Message: "provider returned no image"}
	}
	logger.Debug("generation succeeded")
	return url, nil
}

// Usage returns the normalized quota counters.
func (s *Server) Usage(ctx context.Context) (models.UsageInfo, error) {
	u, err := s.provider.Usage(ctx)
	if err != nil {
		return models.UsageInfo{}, goerr.Wrap(err, "fetch usage")
	}
	return u, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	var req models.GenerateRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Prompt == "" {
		writeJSONError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	url, err := s.Generate(r.Context(), req.Prompt)
	if err != nil {
		writeJSONError(w, provider.StatusOf(err), provider.MessageOf(err))
		return
	}
	writeJSON(w, http.StatusOK, models.GenerateResponse{ImageURL: url})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	u, err := s.Usage(r.Context())
	if err != nil {
		logging.From(r.Context()).Warn("usage fetch failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, usageMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func usageMessage(err error) string {
	return strings.TrimPrefix(provider.MessageOf(err), "fetch usage: ")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, models.ErrorResponse{Error: message})
}
