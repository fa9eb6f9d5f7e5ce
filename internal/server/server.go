package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"AssistChat/internal/controller"
)

// HelloMessage is returned by GET /api/hello.
const HelloMessage = "Hello from the backend!"

// Server exposes one conversation over HTTP and serves the frontend files.
type Server struct {
	ctl       *controller.Controller
	staticDir string
	logger    *slog.Logger
	hub       *hub
}

// New creates a Server. An empty staticDir disables file serving.
func New(ctl *controller.Controller, staticDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctl:       ctl,
		staticDir: staticDir,
		logger:    logger,
		hub:       newHub(logger),
	}
	ctl.Subscribe(s.hub.broadcast)
	return s
}

// Router wires HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/hello", s.handleHello)

		api.Route("/chat", func(chat chi.Router) {
			chat.Get("/", s.handleSnapshot)
			chat.Delete("/", s.handleClear)
			chat.Post("/messages", s.handleSubmit)
			chat.Get("/ws", s.handleWebSocket)
		})
	})

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}

	return r
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": HelloMessage})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.ctl.Clear()
	respondJSON(w, http.StatusOK, s.ctl.Snapshot())
}

// handleSubmit runs a completion synchronously and answers with the new
// snapshot. A client hanging up does not abort the completion.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	if !s.ctl.Submit(context.WithoutCancel(r.Context()), payload.Content) {
		respondError(w, http.StatusConflict, "a reply is already in progress")
		return
	}
	respondJSON(w, http.StatusOK, s.ctl.Snapshot())
}

// Run serves handler on addr until ctx is cancelled
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
