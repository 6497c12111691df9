// Package handler provides HTTP handlers for the virtual TA service.
package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/internal/ta/biz"
	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/infra/app"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/common"
	"github.com/kart-io/virtual-ta/pkg/response"
	"github.com/kart-io/virtual-ta/pkg/utils/json"
)

// LiveMessage GET / 的返回内容。
const LiveMessage = "✅ TDS Virtual TA is live. POST to /api with {'question': '...'}"

// QueryRequest 查询请求体。
type QueryRequest struct {
	Question string `json:"question"`
	// Image base64 编码的图片，可带 data URL 前缀。
	Image string `json:"image,omitempty"`
}

// Handler 处理 TA 的 HTTP 请求。
type Handler struct {
	service    biz.Service
	metrics    *metrics.Metrics
	retryAfter int
}

// Option Handler 选项。
type Option func(*Handler)

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithRetryAfter 设置过载时 Retry-After 头的秒数。
func WithRetryAfter(seconds int) Option {
	return func(h *Handler) { h.retryAfter = seconds }
}

// NewHandler creates a new Handler.
func NewHandler(service biz.Service, opts ...Option) *Handler {
	h := &Handler{
		service:    service,
		metrics:    metrics.Default(),
		retryAfter: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Root 存活提示。HEAD 返回空对象。
func (h *Handler) Root(c *gin.Context) {
	if c.Request.Method == http.MethodHead {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": LiveMessage})
}

// Query 回答问题。
//
// 成功、空问题、无匹配、请求格式错误均返回 200 和 {answer, links}；
// 资源不可用、过载、超时等返回 errno 信封及对应状态码。
func (h *Handler) Query(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		h.metrics.QueryStarted()(biz.OutcomeMalformedRequest.String())
		c.JSON(http.StatusOK, biz.CannedAnswer(biz.AnswerInvalidRequest))
		return
	}

	q := biz.Query{Text: req.Question}
	if req.Image != "" {
		img, err := biz.DecodeImage(req.Image)
		if err != nil {
			logger.Warnw("Ignoring undecodable image",
				"error", err.Error(),
				"request_id", common.GetRequestID(c.Request.Context()),
			)
		} else {
			q.Image = img
		}
	}

	res := h.service.Resolve(c.Request.Context(), q)
	if res.Outcome.SoftFail() {
		c.JSON(http.StatusOK, res.Answer)
		return
	}

	if res.Outcome == biz.OutcomeOverloaded {
		c.Header("Retry-After", strconv.Itoa(h.retryAfter))
	}
	if res.Err == nil {
		response.Fail(c, errors.ErrQueryFailed)
		return
	}
	response.Fail(c, res.Err)
}

// bind 解析请求体，体不是 JSON 对象或字段类型不符时返回 false。
func (h *Handler) bind(c *gin.Context) (*QueryRequest, bool) {
	body, err := c.GetRawData()
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	var req QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false
	}
	return &req, true
}

// Healthz 进程存活检查。
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz 任一资源加载失败时返回 503 ErrServiceUnavailable。
func (h *Handler) Readyz(c *gin.Context) {
	if err := h.service.Ready(); err != nil {
		response.Fail(c, errors.ErrServiceUnavailable.WithCause(err))
		return
	}
	response.OK(c, gin.H{"status": "ready"})
}

// Version 返回构建信息。
func (h *Handler) Version(c *gin.Context) {
	response.OK(c, app.GetVersionInfo())
}

// Metrics 暴露 Prometheus 指标。
func (h *Handler) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
