// Package api serves the Switchboard HTTP interface: session lifecycle,
// agent status, the message log and a server-sent event stream.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/telegraph"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB            *gorm.DB
	Port          int
	Guard         access.Guard
	JWTSecret     string // bearer-token identity when set, headers otherwise
	MaxBodyLength int
	Notifier      telegraph.Notifier
	Broker        *telegraph.Broker // feeds GET /events; nil disables the stream
	Trigger       func()            // asks the router for an early sweep
	Logger        *slog.Logger
	Out           io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("api: db is required")
	}
	if err := registerValidators(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	h := newHandler(opts)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.log), identity(opts.JWTSecret))
	registerRoutes(router, h)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("api: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		// Event streams hold connections open; drop them with the broker
		// so Shutdown does not wait on them.
		if opts.Broker != nil {
			opts.Broker.Close()
		}
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Switchboard API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
