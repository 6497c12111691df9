// Package server 管理 HTTP 服务及附属组件的统一生命周期。
package server

import "context"

// Lifecycle defines the lifecycle interface for servers.
type Lifecycle interface {
	// Start starts the server.
	Start(ctx context.Context) error
	// Stop stops the server gracefully.
	Stop(ctx context.Context) error
}

// Runnable represents a component that can be started and stopped.
type Runnable interface {
	Lifecycle
	// Name returns the server name for identification.
	Name() string
}
