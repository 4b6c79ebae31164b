// Package web exposes the record engine over HTTP: a thin chi router mapping
// table and record operations onto the reader and writer, with the caller's
// session token selecting the active draft workspace.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/engine/reader"
	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/session"
)

// SessionHeader carries the caller's opaque session token
const SessionHeader = "X-Draftline-Session"

// RecordReader reads record pages
type RecordReader interface {
	Read(ctx context.Context, table string, opts reader.Options) (*record.Page, error)
}

// RecordWriter applies record mutations
type RecordWriter interface {
	Create(ctx context.Context, table string, parentID int64, payload *value.Object, workspaceID int64) (*record.WriteResult, error)
	Update(ctx context.Context, table string, liveID int64, payload *value.Object, workspaceID int64) (*record.WriteResult, error)
	Delete(ctx context.Context, table string, liveID int64, workspaceID int64) (*record.WriteResult, error)
}

// Server is the HTTP front of the engine
type Server struct {
	reg      *schema.Registry
	reader   RecordReader
	writer   RecordWriter
	sessions *session.Manager
	log      *zap.Logger

	httpServer *http.Server
}

// NewServer creates a server listening on addr
func NewServer(addr string, reg *schema.Registry, rd RecordReader, wr RecordWriter, sessions *session.Manager, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{reg: reg, reader: rd, writer: wr, sessions: sessions, log: log}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(s.log))
	r.Use(Recovery(s.log))

	r.Get("/tables", s.handleListTables)
	r.Route("/tables/{table}/records", func(r chi.Router) {
		r.Get("/", s.handleListRecords)
		r.Post("/", s.handleCreateRecord)
		r.Get("/{id}", s.handleGetRecord)
		r.Put("/{id}", s.handleUpdateRecord)
		r.Delete("/{id}", s.handleDeleteRecord)
	})
	r.Get("/workspace", s.handleGetWorkspace)
	r.Put("/workspace", s.handleSwitchWorkspace)

	return r
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// workspaceFor resolves the caller's active workspace from the session header
func (s *Server) workspaceFor(r *http.Request) (int64, error) {
	token := r.Header.Get(SessionHeader)
	return s.sessions.ActiveWorkspace(r.Context(), token)
}
