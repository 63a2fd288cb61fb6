package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/recording-server/handlers"
	"github.com/legendsaurav/scramer/server/recording-server/middleware"
)

const shutdownTimeout = 30 * time.Second

// newRouter builds the HTTP surface of the application
func newRouter(app *application) *gin.Engine {
	router := initializeGin(app.cfg)

	// Add middleware
	router.Use(middleware.RequestLogger(app.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.NewCORS())

	if app.cfg.MaxUploadMegabytes > 0 {
		router.MaxMultipartMemory = min(app.cfg.MaxUploadBytes(), 32<<20)
	}

	uploadHandler := handlers.NewUploadHandler(app.logger, app.store, handlers.UploadOptions{
		ValidateContainer: app.cfg.ValidateUploads,
		MaxBytes:          app.cfg.MaxUploadBytes(),
	})
	mergeHandler := handlers.NewMergeHandler(app.logger, app.merger)
	sessionHandler := handlers.NewSessionHandler(app.logger, app.lister)
	renditionHandler := handlers.NewRenditionHandler(app.logger, app.store.Root())

	setupRoutes(router, app.cfg.PublicPrefix, uploadHandler, mergeHandler, sessionHandler, renditionHandler)
	return router
}

// setupRoutes configures the HTTP routes
func setupRoutes(router *gin.Engine, publicPrefix string, uploadHandler *handlers.UploadHandler, mergeHandler *handlers.MergeHandler, sessionHandler *handlers.SessionHandler, renditionHandler *handlers.RenditionHandler) {
	router.POST("/upload", uploadHandler.UploadSegment)
	router.POST("/merge", mergeHandler.Merge)
	router.GET("/merges", mergeHandler.ListMerges)
	router.GET("/sessions", sessionHandler.ListSessions)

	// Finished renditions are played back straight from the storage tree
	renditionRoute := path.Join(publicPrefix, ":project", ":tool", ":date", ":file")
	router.GET(renditionRoute, renditionHandler.ServeRendition)
	router.HEAD(renditionRoute, renditionHandler.ServeRendition)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":        true,
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// listenWithPortSearch binds host:port, moving on to the next port while the
// current one is in use, for at most attempts ports.
func listenWithPortSearch(logger logging.Logger, host string, port, attempts int) (net.Listener, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		candidate := port + i
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(candidate)))
		if err == nil {
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}

		logger.Warn("Port in use, trying next", "port", candidate, "next", candidate+1)
		lastErr = err
	}

	return nil, fmt.Errorf("no free port in %d-%d: %w", port, port+attempts-1, lastErr)
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully
func serve(ctx context.Context, app *application) error {
	listener, err := listenWithPortSearch(app.logger, app.cfg.ListenAddr, app.cfg.Port, app.cfg.PortSearchAttempts)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	server := &http.Server{
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	app.logger.Info("Server listening", "address", listener.Addr().String(), "storage", app.store.Root())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	app.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
