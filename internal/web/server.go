package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renderinc/letters-archive/internal/images"
	"github.com/renderinc/letters-archive/internal/query"
	"github.com/renderinc/letters-archive/internal/storage"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Querier runs browse filters
type Querier interface {
	Run(ctx context.Context, f query.Filter) ([]*query.Result, error)
	Bounds(ctx context.Context) (first, last time.Time, ok bool, err error)
}

// LetterStore is the health view of the letter store
type LetterStore interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// IndexCounter reports the number of indexed letters
type IndexCounter interface {
	Count() (uint64, error)
}

// ErrNoPassword is returned by NewServer when no password is set and the
// archive was not explicitly opened to everyone
var ErrNoPassword = errors.New("no password configured")

// Options configures the server
type Options struct {
	Password      string
	SessionSecret []byte
	SessionTTL    time.Duration
	FullText      bool // offer the full-text mode switch
	Insecure      bool // serve without a password
}

type Server struct {
	engine    Querier
	scans     images.Store
	db        LetterStore
	idx       IndexCounter
	opts      Options
	sessions  *sessions
	templates *template.Template
}

// NewServer creates the browsing server. idx may be nil.
func NewServer(engine Querier, scans images.Store, db LetterStore, idx IndexCounter, opts Options) (*Server, error) {
	if opts.Password == "" && !opts.Insecure {
		return nil, ErrNoPassword
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}

	sess, err := newSessions(opts.SessionSecret, opts.SessionTTL)
	if err != nil {
		return nil, err
	}

	if opts.Password == "" {
		log.Warn().Msg("Serving without a password, the archive is open to anyone who can reach it")
	}

	return &Server{
		engine:    engine,
		scans:     scans,
		db:        db,
		idx:       idx,
		opts:      opts,
		sessions:  sess,
		templates: tmpl,
	}, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/", s.handleIndex)
		r.Get("/scans", s.handleScan)
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Server listening")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

type letterView struct {
	ID          int64
	Date        string
	Description []query.Segment
	Content     []query.Segment
	Fragments   []template.HTML
	Scans       []string
}

type indexPage struct {
	Start    string
	End      string
	Query    string
	Mode     string
	FullText bool
	Searched bool
	Error    string
	Letters  []letterView
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	page := indexPage{
		Start:    strings.TrimSpace(params.Get("start")),
		End:      strings.TrimSpace(params.Get("end")),
		Query:    params.Get("q"),
		Mode:     params.Get("mode"),
		FullText: s.opts.FullText,
	}
	if page.Mode == "" {
		page.Mode = string(query.ModeSubstring)
	}

	// Default to the whole archive
	if page.Start == "" && page.End == "" {
		first, last, ok, err := s.engine.Bounds(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Error loading date bounds")
			s.render(w, http.StatusInternalServerError, "index.html", page.withError("The archive is unavailable right now."))
			return
		}
		if ok {
			page.Start = first.Format(storage.DateLayout)
			page.End = last.Format(storage.DateLayout)
		}
	}

	filter, err := parseFilter(page)
	if err != nil {
		s.render(w, http.StatusBadRequest, "index.html", page.withError(err.Error()))
		return
	}

	results, err := s.engine.Run(r.Context(), filter)
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			s.render(w, http.StatusBadRequest, "index.html", page.withError(verr.Error()))
			return
		}
		log.Error().Err(err).Msg("Error running query")
		s.render(w, http.StatusInternalServerError, "index.html", page.withError("The archive is unavailable right now."))
		return
	}

	page.Searched = true
	for _, res := range results {
		v := letterView{
			ID:          res.Letter.ID,
			Date:        res.Letter.Date.Format(storage.DateLayout),
			Description: res.Description,
			Content:     res.Content,
			Scans:       res.Letter.ScanPaths,
		}
		// Index fragments are already escaped by the highlighter
		for _, f := range res.Fragments {
			v.Fragments = append(v.Fragments, template.HTML(f))
		}
		page.Letters = append(page.Letters, v)
	}

	s.render(w, http.StatusOK, "index.html", page)
}

func (p indexPage) withError(msg string) indexPage {
	p.Error = msg
	return p
}

func parseFilter(p indexPage) (query.Filter, error) {
	f := query.Filter{Query: p.Query, Mode: query.Mode(p.Mode)}

	var err error
	if p.Start != "" {
		if f.Start, err = time.Parse(storage.DateLayout, p.Start); err != nil {
			return f, fmt.Errorf("invalid start date %q", p.Start)
		}
	}
	if p.End != "" {
		if f.End, err = time.Parse(storage.DateLayout, p.End); err != nil {
			return f, fmt.Errorf("invalid end date %q", p.End)
		}
	}
	return f, nil
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		http.Error(w, "Missing ref parameter", http.StatusBadRequest)
		return
	}

	data, err := s.scans.Fetch(r.Context(), ref)
	switch {
	case err == nil:
	case errors.Is(err, images.ErrNotFound):
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	case errors.Is(err, images.ErrInvalidRef):
		http.Error(w, "Invalid ref", http.StatusBadRequest)
		return
	default:
		log.Error().Err(err).Str("ref", ref).Msg("Error fetching scan")
		http.Error(w, "Scan unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok"}

	if err := s.db.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "unavailable", "error": err.Error()})
		return
	}

	dbCount, err := s.db.Count(r.Context())
	if err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["error"] = err.Error()
	}
	body["letters_in_db"] = dbCount

	if s.idx != nil {
		indexCount, err := s.idx.Count()
		if err == nil {
			body["letters_in_index"] = indexCount
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Error rendering template")
	}
}
