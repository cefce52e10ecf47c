package server

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Config holds the configuration for a single web server instance.
type Config struct {
	Name        string
	Host        string
	Port        int
	Description string

	// Addr is the explicit listen address (e.g., ":8080").
	// When empty it is derived from Host and Port.
	Addr string

	// Handler is the http.Handler (e.g., a router) to be served.
	Handler http.Handler

	// GZIP enables response compression.
	GZIP bool

	// TLS options. Certificate files and self-signed certificates are
	// mutually exclusive.
	SSLCert       string
	SSLKey        string
	SelfSignedSSL bool

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// DrainTimeout is the time to wait for in-flight requests to complete
	// before forcing shutdown. Default: 25 seconds
	DrainTimeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// ListenAddr returns the address the server should bind to.
func (c Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// applyDefaults fills in zero-valued timeouts.
func (c *Config) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 25 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
}

// Instance defines the interface for a single server instance.
// It abstracts the underlying http.Server, allowing for easier management and testing.
type Instance interface {
	// Start begins serving requests. This method should be non-blocking and
	// run the server in a separate goroutine.
	Start() error
	// Stop gracefully shuts down the server without interrupting any active connections.
	// It accepts a context to allow for a timeout.
	Stop(ctx context.Context) error
	// Addr returns the network address the server is listening on.
	Addr() string
	// Name returns the configured name of the server.
	Name() string
	// InFlightRequests returns the current number of requests being served.
	InFlightRequests() int64
	// IsShuttingDown reports whether the server has begun shutting down.
	IsShuttingDown() bool
	// HealthCheckHandler returns a liveness handler for this instance.
	HealthCheckHandler() http.HandlerFunc
	// ReadinessHandler returns a readiness handler for this instance.
	ReadinessHandler() http.HandlerFunc
	// Wait blocks until shutdown of this instance is complete.
	Wait()
}

// Manager defines the interface for a server manager.
// It is responsible for managing the lifecycle of multiple server instances.
type Manager interface {
	// Add registers a new server instance based on the provided configuration.
	// The server is not started until StartAll or Start is called on the instance.
	Add(cfg Config) (Instance, error)
	// Get returns a server instance by its name.
	Get(name string) (Instance, error)
	// Remove stops and removes a server instance by its name.
	Remove(name string) error
	// StartAll starts all registered server instances that are not already running.
	StartAll() error
	// StopAll gracefully shuts down all running server instances and then
	// runs the registered shutdown callbacks.
	StopAll() error
	// RestartAll gracefully restarts all running server instances.
	RestartAll() error
	// List returns all registered server instances.
	List() []Instance
	// RegisterShutdownCallback registers a cleanup function to be run after
	// all servers have stopped (e.g., closing database connections).
	RegisterShutdownCallback(cb ShutdownCallback)
	// ServeWithGracefulShutdown starts all servers and blocks until a
	// SIGINT/SIGTERM is received, then shuts everything down gracefully.
	ServeWithGracefulShutdown() error
}
