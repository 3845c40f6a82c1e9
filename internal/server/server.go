package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Session is the state the web UI drives.
type Session interface {
	Refresh(ctx context.Context) *session.Result
	Ask(ctx context.Context, question string) (session.ChatTurn, error)
	Clear()
	Summaries() []session.Summary
	Transcript() []session.ChatTurn
	LastRefresh() time.Time
}

// Server is the HTTP server for the digest page and JSON API.
type Server struct {
	sess   Session
	log    *slog.Logger
	pages  map[string]*template.Template
	router chi.Router
}

// New creates a new Server.
func New(sess Session, log *slog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"formatTime": formatTime,
		"title":      titleCase,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so "title" and "content" can be
	// redefined per page.
	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{sess: sess, log: logger.OrDiscard(log), pages: pages}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleIndex)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/ask", s.handleAsk)
	r.Post("/clear", s.handleClear)

	r.Route("/api", func(r chi.Router) {
		r.Get("/summaries", s.handleAPISummaries)
		r.Get("/transcript", s.handleAPITranscript)
		r.Post("/ask", s.handleAPIAsk)
		r.Post("/refresh", s.handleAPIRefresh)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router = r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", map[string]any{
		"Summaries":   s.sess.Summaries(),
		"Transcript":  s.sess.Transcript(),
		"LastRefresh": s.sess.LastRefresh(),
		"Notice":      r.URL.Query().Get("notice"),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result := s.sess.Refresh(r.Context())
	if err := result.Err(); err != nil {
		s.log.Error("refresh failed", "error", err)
		redirectWithNotice(w, r, "Refresh incomplete: "+err.Error())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.FormValue("question"))
	if question == "" {
		http.Redirect(w, r, "/#chat", http.StatusSeeOther)
		return
	}
	if _, err := s.sess.Ask(r.Context(), question); err != nil {
		s.log.Error("ask failed", "error", err)
	}
	http.Redirect(w, r, "/#chat", http.StatusSeeOther)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.sess.Clear()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type summariesResponse struct {
	Summaries   []session.Summary `json:"summaries"`
	LastRefresh *time.Time        `json:"last_refresh,omitempty"`
}

func (s *Server) handleAPISummaries(w http.ResponseWriter, r *http.Request) {
	resp := summariesResponse{Summaries: s.sess.Summaries()}
	if t := s.sess.LastRefresh(); !t.IsZero() {
		resp.LastRefresh = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPITranscript(w http.ResponseWriter, r *http.Request) {
	transcript := s.sess.Transcript()
	if transcript == nil {
		transcript = []session.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, transcript)
}

type askRequest struct {
	Question string `json:"question"`
}

// errAnswerFailed is the client-facing code for a failed answer. The cause
// stays in the server log.
const errAnswerFailed = "answer_failed"

type askResponse struct {
	session.ChatTurn
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAPIAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	turn, err := s.sess.Ask(r.Context(), req.Question)
	switch {
	case errors.Is(err, session.ErrEmptyQuestion):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case err != nil:
		s.log.Error("ask failed", "error", err)
		writeJSON(w, http.StatusBadGateway, askResponse{ChatTurn: turn, Error: errAnswerFailed})
	default:
		writeJSON(w, http.StatusOK, askResponse{ChatTurn: turn})
	}
}

type stepResponse struct {
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	result := s.sess.Refresh(r.Context())

	steps := make([]stepResponse, len(result.Steps))
	for i, st := range result.Steps {
		steps[i] = stepResponse{Name: st.Name, Summary: st.Summary}
		if st.Err != nil {
			steps[i].Error = st.Err.Error()
		}
	}

	status := http.StatusOK
	if result.Err() != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"steps": steps})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.Error("rendering template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, notice string) {
	http.Redirect(w, r, "/?"+url.Values{"notice": {notice}}.Encode(), http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("Mon 2 Jan 2006, 15:04")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Serve runs the server on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, sess Session, port int, log *slog.Logger) error {
	log = logger.OrDiscard(log)
	srv, err := New(sess, log)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Refresh makes one model call per category.
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "url", "http://"+addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
