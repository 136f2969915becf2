// Package server exposes the XRPC and admin HTTP surfaces.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvault/lexhost/internal/config"
	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/resolve"
	"github.com/atvault/lexhost/internal/sandbox"
	"github.com/atvault/lexhost/internal/xrpc"
)

// Server wires the engine, dispatcher, resolver and relay behind HTTP.
type Server struct {
	cfg        config.Config
	engine     *engine.Engine
	dispatcher *xrpc.Dispatcher
	resolver   *resolve.Resolver
	relay      *resolve.RelayClient
	logger     *slog.Logger
	http       *http.Server
}

// New assembles a server from its parts. resolver and relay may be nil
// when network features are disabled; the corresponding admin endpoints
// then report failure.
func New(cfg config.Config, e *engine.Engine, resolver *resolve.Resolver, relay *resolve.RelayClient, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	rt := sandbox.New(e, logger, cfg.ScriptTimeout.Std())
	e.SetScriptValidator(rt.CheckScript)
	s := &Server{
		cfg:        cfg,
		engine:     e,
		dispatcher: xrpc.NewDispatcher(e, rt, logger, cfg.ServiceDID),
		resolver:   resolver,
		relay:      relay,
		logger:     logger,
	}
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/xrpc/{method}", s.handleQuery)
	r.Post("/xrpc/{method}", s.handleProcedure)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Get("/stats", s.handleStats)

		r.Get("/lexicons", s.handleListLexicons)
		r.Post("/lexicons", s.handlePutLexicon)
		r.Get("/lexicons/{id}", s.handleGetLexicon)
		r.Put("/lexicons/{id}", s.handlePutLexicon)
		r.Delete("/lexicons/{id}", s.handleDeleteLexicon)

		r.Get("/network-lexicons", s.handleListNetworkLexicons)
		r.Post("/network-lexicons", s.handleInstallNetworkLexicon)
		r.Post("/network-lexicons/{nsid}/refresh", s.handleRefreshNetworkLexicon)
		r.Delete("/network-lexicons/{nsid}", s.handleDeleteLexicon)

		r.Get("/records", s.handleListRecords)
		r.Get("/records/item", s.handleGetRecord)
		r.Delete("/records", s.handleDeleteRecord)
		r.Delete("/records/collection", s.handleDeleteCollection)

		r.Get("/backfill", s.handleListBackfill)
		r.Get("/backfill/{id}", s.handleGetBackfill)
		r.Post("/backfill", s.handleStartBackfill)

		r.Get("/admins", s.handleListAdmins)
		r.Post("/admins", s.handleCreateAdmin)
		r.Delete("/admins/{id}", s.handleDeleteAdmin)
	})

	return r
}

// ListenAndServe runs the server until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", s.cfg.Listen)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
