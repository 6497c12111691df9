// Package router provides virtual TA service routing.
package router

import (
	"net/http"

	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/internal/ta/handler"
	"github.com/kart-io/virtual-ta/pkg/infra/server"
)

// Register registers the virtual TA routes.
func Register(mgr *server.Manager, h *handler.Handler) error {
	logger.Info("Registering virtual TA routes...")

	httpServer := mgr.HTTPServer()
	if httpServer == nil {
		return nil
	}
	router := httpServer.Engine()

	router.GET("/", h.Root)
	router.HEAD("/", h.Root)

	// 问答入口，根路径与 /api 等价
	router.POST("/api", h.Query)
	router.POST("/", h.Query)

	// 运维端点
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Readyz)
	router.GET("/version", h.Version)
	router.Handle(http.MethodGet, "/metrics", h.Metrics)

	logger.Info("HTTP routes registered")
	return nil
}
