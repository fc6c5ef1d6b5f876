// Package serve runs the local dashboard: a small HTTP API over the data
// layer plus a websocket feed of live visitor counts.
package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/data"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server is the local dashboard server.
type Server struct {
	addr string
	data *data.Service
	hub  *Hub
	loc  *time.Location
	log  *zap.Logger
}

// New builds a dashboard server listening on addr. loc controls chart bucket
// alignment; nil means UTC.
func New(addr string, svc *data.Service, loc *time.Location, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		addr: addr,
		data: svc,
		hub:  NewHub(log),
		loc:  loc,
		log:  log,
	}
}

// Routes returns the configured router, exposed for tests.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/websites", s.handleWebsites).Methods(http.MethodGet)
	api.HandleFunc("/websites/{id}/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/websites/{id}/series", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/websites/{id}/active", s.handleActive).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.hub.handleWebSocket).Methods(http.MethodGet)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully. The hub and
// the active-visitor poller share the server's lifetime.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	go (&poller{data: s.data, hub: s.hub, log: s.log}).run(ctx)

	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", zap.String("addr", s.addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}
