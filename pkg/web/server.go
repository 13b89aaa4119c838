// Package web serves the HTML front end: the generator page, the history
// page and the session teardown beacon. The JSON proxy endpoints are mounted
// on the same router.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/config"
	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/proxy"
	"github.com/pario-ai/imagine/pkg/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	// maxFormSize bounds POST / form bodies.
	maxFormSize = 64 * 1024

	// historyPage is how many history cards the index shows per step.
	historyPage = 5

	shutdownTimeout = 5 * time.Second

	imageFetchTimeout = time.Minute
)

// Server is the HTTP front end.
type Server struct {
	listen     string
	cookieName string
	sessions   *session.Manager
	templates  *template.Template
	router     *chi.Mux
	// images fetches remote images for /download.
	images *http.Client
}

// New builds the router. The proxy endpoints of p are mounted alongside the
// UI routes.
func New(cfg *config.Config, sessions *session.Manager, p *proxy.Server) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, goerr.Wrap(err, "parse templates")
	}

	r := chi.NewRouter()
	s := &Server{
		listen:     cfg.Listen,
		cookieName: cfg.Session.CookieName,
		sessions:   sessions,
		templates:  tmpl,
		router:     r,
		images:     &http.Client{Timeout: imageFetchTimeout},
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/session/close", s.handleClose)
	p.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)
		r.Get("/", s.handleIndex)
		r.Post("/", s.handleSubmit)
		r.Get("/logs", s.handleLogs)
		r.Post("/logs/clear", s.handleClearLogs)
		r.Get("/download", s.handleDownload)
	})

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.From(ctx).Info("imagine listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return goerr.Wrap(err, "shutdown http server")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return goerr.Wrap(err, "serve http", goerr.V("addr", s.listen))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok","sessions":` + strconv.Itoa(s.sessions.Len()) + `}`))
}

// handleClose is the target of the page's pagehide beacon. It always
// answers 204 so the browser never retries.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cookieName); err == nil && session.ValidID(c.Value) {
		if err := s.sessions.Close(r.Context(), c.Value); err != nil {
			logging.From(r.Context()).Warn("session teardown failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type indexPage struct {
	session.View
	// Latest is the entry of the most recent settled submission.
	Latest  *latestResult
	History []historyItem
	More    int
}

type latestResult struct {
	ImageURL       string
	GenerationTime int64
	Download       string
}

type historyItem struct {
	Prompt         string
	Status         string
	ImageURL       string
	Error          string
	GenerationTime int64
	Download       string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	view := sess.View()

	show := historyPage
	if n, err := strconv.Atoi(r.URL.Query().Get("show")); err == nil && n > 0 {
		show = n
	}

	page := indexPage{View: view}
	if view.ImageURL != "" {
		page.Latest = &latestResult{ImageURL: view.ImageURL}
		for i, e := range view.Logs {
			if e.ImageURL == view.ImageURL {
				page.Latest.GenerationTime = e.GenerationTime
				page.Latest.Download = downloadPath(entryOrdinal(view.Logs, i))
				break
			}
		}
	}

	// history is shown once any entry carries an image
	if view.ImageURL != "" && hasImage(view.Logs) {
		for i, e := range view.Logs {
			if i == show {
				page.More = show + historyPage
				break
			}
			page.History = append(page.History, historyItem{
				Prompt:         e.Prompt,
				Status:         string(e.Status),
				ImageURL:       e.ImageURL,
				Error:          e.Error,
				GenerationTime: e.GenerationTime,
				Download:       downloadPath(entryOrdinal(view.Logs, i)),
			})
		}
	}

	s.render(w, r, http.StatusOK, "index.html", page)
}

// handleSubmit runs a submission and redirects back to the index, which
// renders the settled state held by the session.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sess := sessionFrom(ctx)
	out, err := sess.Submit(ctx, r.PostForm.Get("prompt"))
	switch {
	case errors.Is(err, session.ErrSubmissionInFlight):
		logging.From(ctx).Info("submission rejected while busy", "session", sess.ID())
	case errors.Is(err, session.ErrSessionClosed):
		logging.From(ctx).Info("submission on closed session", "session", sess.ID())
	case err != nil:
		logging.From(ctx).Error("submission failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		logging.From(ctx).Info("submission settled", "session", sess.ID(), "state", out.State)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type logsPage struct {
	session.View
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.render(w, r, http.StatusOK, "logs.html", logsPage{View: sess.View()})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := sessionFrom(ctx).ClearLogs(ctx); err != nil {
		logging.From(ctx).Warn("clear logs failed", "error", err)
	}
	http.Redirect(w, r, "/logs", http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, code int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logging.From(r.Context()).Error("render template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

// accessLogger logs every request and binds a request-scoped logger to the
// context.
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		logger := logging.Default().With("request_id", middleware.GetReqID(r.Context()))

		defer func() {
			logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r.WithContext(logging.With(r.Context(), logger)))
	})
}
