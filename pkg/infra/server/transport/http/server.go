// Package http 提供基于 gin 的 HTTP 传输层。
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	apierrors "github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/observability"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/resilience"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/security"
	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
	options "github.com/kart-io/virtual-ta/pkg/options/server/http"
	"github.com/kart-io/virtual-ta/pkg/response"
)

// Server is the HTTP server implementation.
type Server struct {
	opts   *options.Options
	mwOpts *mwopts.Options
	engine *gin.Engine
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
	errCh    chan error
}

// NewServer creates a new HTTP server with the given options.
func NewServer(serverOpts *options.Options, middlewareOpts *mwopts.Options) *Server {
	if serverOpts == nil {
		serverOpts = options.NewOptions()
	}
	if middlewareOpts == nil {
		middlewareOpts = mwopts.NewOptions()
	}

	gin.SetMode(serverOpts.Mode)

	// 不使用 gin 默认中间件
	engine := gin.New()

	s := &Server{
		opts:   serverOpts,
		mwOpts: middlewareOpts,
		engine: engine,
		errCh:  make(chan error, 1),
	}

	// 中间件必须先于路由注册，子路由组才会继承
	s.applyMiddleware(middlewareOpts)

	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrRouteNotFound)
	})

	return s
}

// Name returns the server name.
func (s *Server) Name() string {
	return "http[gin]"
}

// Engine returns the underlying gin.Engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr 返回实际监听地址，未启动时返回配置地址。
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Errors 在服务异常退出时收到错误。
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Start 同步绑定端口，之后在后台处理请求。
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
	return nil
}

// applyMiddleware 按配置顺序注册中间件。
func (s *Server) applyMiddleware(opts *mwopts.Options) {
	_ = opts.Complete()

	for _, name := range opts.Middleware {
		switch name {
		case mwopts.MiddlewareRecovery:
			s.engine.Use(resilience.RecoveryWithOptions(*opts.Recovery, nil))
		case mwopts.MiddlewareRequestID:
			s.engine.Use(middleware.RequestIDWithOptions(*opts.RequestID, nil))
		case mwopts.MiddlewareTracing:
			s.engine.Use(observability.Tracing(opts.Logger.SkipPaths...))
		case mwopts.MiddlewareLogger:
			s.engine.Use(observability.LoggerWithOptions(*opts.Logger))
		case mwopts.MiddlewareCORS:
			s.engine.Use(security.CORSWithOptions(*opts.CORS))
		case mwopts.MiddlewareBodyLimit:
			s.engine.Use(resilience.BodyLimitWithOptions(*opts.BodyLimit))
		}
	}
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
