package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/app"
	"github.com/franckalain/doctorfood/internal/imaging"
	"github.com/franckalain/doctorfood/internal/models"
)

// ScanLister exposes the diagnostic scan log.
type ScanLister interface {
	GetRecentScans(ctx context.Context, limit int) ([]*models.Scan, error)
}

type Server struct {
	ctrl        *app.Controller
	acquirer    *imaging.Acquirer
	scans       ScanLister
	logger      *zap.Logger
	engine      *gin.Engine
	clients     sync.Map // client id -> *wsClient
	unsubscribe func()
}

// New wires the HTTP and websocket surface to the controller. scans may be nil.
func New(ctrl *app.Controller, acquirer *imaging.Acquirer, scans ScanLister, logger *zap.Logger, staticDir string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ctrl:     ctrl,
		acquirer: acquirer,
		scans:    scans,
		logger:   logger,
	}
	s.engine = s.routes(staticDir)
	s.unsubscribe = ctrl.Subscribe(s.broadcastState)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on port until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start(port string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	s.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close()
	return srv.Shutdown(ctx)
}

// Close drops every websocket client and stops listening for state changes.
func (s *Server) Close() {
	s.unsubscribe()
	s.clients.Range(func(key, value any) bool {
		value.(*wsClient).conn.Close()
		s.clients.Delete(key)
		return true
	})
}
