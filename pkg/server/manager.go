package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/net/http2"

	"github.com/bitechdev/CrudlSpec/pkg/logger"
	"github.com/bitechdev/CrudlSpec/pkg/middleware"
)

// serverManager manages a collection of server instances.
type serverManager struct {
	instances map[string]Instance
	callbacks []ShutdownCallback
	mu        sync.RWMutex
}

// NewManager creates a new server manager.
func NewManager() Manager {
	return &serverManager{
		instances: make(map[string]Instance),
	}
}

// Add registers a new server instance.
func (sm *serverManager) Add(cfg Config) (Instance, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if cfg.Name == "" {
		return nil, fmt.Errorf("server name cannot be empty")
	}
	if _, exists := sm.instances[cfg.Name]; exists {
		return nil, fmt.Errorf("server with name '%s' already exists", cfg.Name)
	}

	instance, err := newInstance(cfg)
	if err != nil {
		return nil, err
	}

	sm.instances[cfg.Name] = instance
	return instance, nil
}

// Get returns a server instance by its name.
func (sm *serverManager) Get(name string) (Instance, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	instance, exists := sm.instances[name]
	if !exists {
		return nil, fmt.Errorf("server with name '%s' not found", name)
	}
	return instance, nil
}

// Remove stops and removes a server instance by its name.
func (sm *serverManager) Remove(name string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	instance, exists := sm.instances[name]
	if !exists {
		return fmt.Errorf("server with name '%s' not found", name)
	}

	// Stop the server if it's running
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := instance.Stop(ctx); err != nil {
		logger.Warn("Failed to gracefully stop server '%s' on remove: %v", name, err)
	}

	delete(sm.instances, name)
	return nil
}

// StartAll starts all registered server instances.
func (sm *serverManager) StartAll() error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var startErrors []error
	for name, instance := range sm.instances {
		if err := instance.Start(); err != nil {
			startErrors = append(startErrors, fmt.Errorf("failed to start server '%s': %w", name, err))
		}
	}

	if len(startErrors) > 0 {
		return fmt.Errorf("encountered errors while starting servers: %v", startErrors)
	}
	return nil
}

// StopAll gracefully shuts down all running server instances, then runs the
// registered shutdown callbacks.
func (sm *serverManager) StopAll() error {
	sm.mu.RLock()
	instancesToStop := make([]Instance, 0, len(sm.instances))
	for _, instance := range sm.instances {
		instancesToStop = append(instancesToStop, instance)
	}
	callbacks := make([]ShutdownCallback, len(sm.callbacks))
	copy(callbacks, sm.callbacks)
	sm.mu.RUnlock()

	logger.Info("Shutting down all servers...")

	var shutdownErrors []error
	var errMu sync.Mutex
	var wg sync.WaitGroup

	for _, instance := range instancesToStop {
		wg.Add(1)
		go func(inst Instance) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := inst.Stop(ctx); err != nil {
				errMu.Lock()
				shutdownErrors = append(shutdownErrors, fmt.Errorf("failed to stop server '%s': %w", inst.Addr(), err))
				errMu.Unlock()
			}
		}(instance)
	}

	wg.Wait()

	// Run cleanup callbacks after all listeners have stopped
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for i, cb := range callbacks {
		if err := cb(ctx); err != nil {
			logger.Error("Shutdown callback %d failed: %v", i+1, err)
			shutdownErrors = append(shutdownErrors, err)
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("encountered errors while stopping servers: %v", shutdownErrors)
	}
	logger.Info("All servers stopped gracefully.")
	return nil
}

// RestartAll gracefully restarts all running server instances.
func (sm *serverManager) RestartAll() error {
	logger.Info("Restarting all servers...")
	if err := sm.StopAll(); err != nil {
		return fmt.Errorf("failed to stop servers during restart: %w", err)
	}

	// Give ports time to be released
	time.Sleep(200 * time.Millisecond)

	if err := sm.StartAll(); err != nil {
		return fmt.Errorf("failed to start servers during restart: %w", err)
	}
	logger.Info("All servers restarted successfully.")
	return nil
}

// List returns all registered server instances.
func (sm *serverManager) List() []Instance {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	instances := make([]Instance, 0, len(sm.instances))
	for _, instance := range sm.instances {
		instances = append(instances, instance)
	}
	return instances
}

// RegisterShutdownCallback registers a cleanup function run by StopAll.
func (sm *serverManager) RegisterShutdownCallback(cb ShutdownCallback) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.callbacks = append(sm.callbacks, cb)
}

// ServeWithGracefulShutdown starts all servers and blocks until an interrupt
// or termination signal arrives, then stops everything gracefully.
func (sm *serverManager) ServeWithGracefulShutdown() error {
	if err := sm.StartAll(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Received signal: %v, initiating graceful shutdown", sig)
	return sm.StopAll()
}

// serverInstance is a concrete implementation of the Instance interface.
type serverInstance struct {
	cfg      Config
	graceful *GracefulServer
	certFile string
	keyFile  string
	mu       sync.RWMutex
	running  bool
}

// newInstance creates a new, unstarted server instance from a config.
func newInstance(cfg Config) (*serverInstance, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	cfg.applyDefaults()

	var handler http.Handler = cfg.Handler

	// Wrap with GZIP handler if enabled
	if cfg.GZIP {
		gz, err := gzhttp.NewWrapper(gzhttp.CompressionLevel(gzip.BestSpeed))
		if err != nil {
			return nil, fmt.Errorf("failed to create GZIP wrapper: %w", err)
		}
		handler = gz(handler)
	}

	// Wrap with the panic recovery middleware
	handler = middleware.PanicRecovery(handler)

	wrapped := cfg
	wrapped.Handler = handler

	graceful := NewGracefulServer(wrapped)

	// Track in-flight requests and reject new ones during shutdown
	graceful.server.Handler = graceful.TrackRequestsMiddleware(graceful.server.Handler)

	inst := &serverInstance{
		cfg:      cfg,
		graceful: graceful,
	}

	// Resolve TLS material up front so misconfiguration fails at Add time
	tlsConfig, certFile, keyFile, err := configureTLS(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		graceful.server.TLSConfig = tlsConfig
		if err := http2.ConfigureServer(graceful.server, &http2.Server{}); err != nil {
			return nil, fmt.Errorf("failed to configure HTTP/2: %w", err)
		}
		inst.certFile = certFile
		inst.keyFile = keyFile
	}

	return inst, nil
}

// Start begins serving requests in a new goroutine.
func (s *serverInstance) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server '%s' is already running", s.cfg.Name)
	}

	hasSSL := s.certFile != "" && s.keyFile != ""

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			logger.Info("Server '%s' stopped.", s.cfg.Name)
		}()

		var err error
		if hasSSL {
			logger.Info("Starting HTTPS server '%s' on %s", s.cfg.Name, s.Addr())
			err = s.graceful.server.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			logger.Info("Starting HTTP server '%s' on %s", s.cfg.Name, s.Addr())
			err = s.graceful.server.ListenAndServe()
		}

		// If the server stopped for a reason other than a graceful shutdown, log the error.
		if err != nil && err != http.ErrServerClosed {
			logger.Error("Server '%s' failed: %v", s.cfg.Name, err)
		}
	}()

	s.running = true
	// A small delay to allow the goroutine to start and potentially fail on binding.
	time.Sleep(50 * time.Millisecond)

	return nil
}

// Stop gracefully shuts down the server.
func (s *serverInstance) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil // Already stopped
	}
	s.mu.Unlock()

	logger.Info("Gracefully shutting down server '%s'...", s.cfg.Name)
	err := s.graceful.Shutdown(ctx)
	if err == nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}
	return err
}

// Addr returns the network address the server is listening on.
func (s *serverInstance) Addr() string {
	return s.graceful.server.Addr
}

// Name returns the configured name of the server.
func (s *serverInstance) Name() string {
	return s.cfg.Name
}

// InFlightRequests returns the current number of requests being served.
func (s *serverInstance) InFlightRequests() int64 {
	return s.graceful.InFlightRequests()
}

// IsShuttingDown reports whether the server has begun shutting down.
func (s *serverInstance) IsShuttingDown() bool {
	return s.graceful.IsShuttingDown()
}

// HealthCheckHandler returns a liveness handler for this instance.
func (s *serverInstance) HealthCheckHandler() http.HandlerFunc {
	return s.graceful.HealthCheckHandler()
}

// ReadinessHandler returns a readiness handler for this instance.
func (s *serverInstance) ReadinessHandler() http.HandlerFunc {
	return s.graceful.ReadinessHandler()
}

// Wait blocks until shutdown of this instance is complete.
func (s *serverInstance) Wait() {
	s.graceful.Wait()
}
