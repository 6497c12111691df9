package server

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/virtual-ta/pkg/infra/server/transport/http"
)

// Manager manages the HTTP server and auxiliary runnables with unified lifecycle.
type Manager struct {
	opts       *Options
	httpServer *http.Server
	servers    []Runnable
	mu         sync.Mutex
	started    bool
}

// NewManager creates a new server manager with the given options.
func NewManager(opts ...Option) *Manager {
	serverOpts := NewOptions()
	for _, opt := range opts {
		opt(serverOpts)
	}
	_ = serverOpts.Complete()

	return &Manager{
		opts:       serverOpts,
		httpServer: http.NewServer(serverOpts.HTTP, serverOpts.Middleware),
		servers:    make([]Runnable, 0),
	}
}

// HTTPServer returns the HTTP server.
func (m *Manager) HTTPServer() *http.Server {
	return m.httpServer
}

// AddServer adds a custom runnable to the manager.
// Runnables start after the HTTP server and stop before it.
func (m *Manager) AddServer(server Runnable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = append(m.servers, server)
}

// Start starts all servers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("server manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if err := m.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	logger.Infow("HTTP server started", "addr", m.httpServer.Addr())

	for i, server := range m.servers {
		if err := server.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.servers[j].Stop(ctx)
			}
			_ = m.httpServer.Stop(ctx)
			return fmt.Errorf("failed to start server %s: %w", server.Name(), err)
		}
		logger.Infow("Custom server started", "name", server.Name())
	}

	return nil
}

// Stop stops all servers gracefully.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.mu.Unlock()

	var errs []error

	for i := len(m.servers) - 1; i >= 0; i-- {
		server := m.servers[i]
		if err := server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop server %s: %w", server.Name(), err))
		}
	}

	if err := m.httpServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	logger.Info("HTTP server stopped")

	return utilerrors.NewAggregate(errs)
}

// Run starts all servers and blocks until ctx is done or a termination signal arrives.
func (m *Manager) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-m.httpServer.Errors():
		logger.Errorw("HTTP server exited unexpectedly", "error", err.Error())
		_ = m.Stop(context.Background())
		return err
	}

	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
	defer cancel()

	return m.Stop(shutdownCtx)
}
