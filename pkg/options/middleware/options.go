// Package middleware provides middleware configuration options.
package middleware

import (
	"github.com/spf13/pflag"
)

// 中间件名称常量。
const (
	MiddlewareRecovery  = "recovery"
	MiddlewareRequestID = "request-id"
	MiddlewareLogger    = "logger"
	MiddlewareCORS      = "cors"
	MiddlewareBodyLimit = "body-limit"
	MiddlewareTracing   = "tracing"
)

// DefaultOrder 是中间件的默认应用顺序。
var DefaultOrder = []string{
	MiddlewareRecovery,
	MiddlewareRequestID,
	MiddlewareTracing,
	MiddlewareLogger,
	MiddlewareCORS,
	MiddlewareBodyLimit,
}

// Options 汇总 HTTP 服务使用的全部中间件配置。
// 是否启用由 Middleware 数组控制。
type Options struct {
	// Middleware 指定中间件的应用顺序，为空时使用 DefaultOrder。
	Middleware []string `json:"middleware" mapstructure:"middleware"`

	Recovery  *RecoveryOptions  `json:"recovery" mapstructure:"recovery"`
	RequestID *RequestIDOptions `json:"request-id" mapstructure:"request-id"`
	Logger    *LoggerOptions    `json:"logger" mapstructure:"logger"`
	CORS      *CORSOptions      `json:"cors" mapstructure:"cors"`
	BodyLimit *BodyLimitOptions `json:"body-limit" mapstructure:"body-limit"`
}

// NewOptions 创建默认中间件选项。
func NewOptions() *Options {
	return &Options{
		Middleware: append([]string(nil), DefaultOrder...),
		Recovery:   NewRecoveryOptions(),
		RequestID:  NewRequestIDOptions(),
		Logger:     NewLoggerOptions(),
		CORS:       NewCORSOptions(),
		BodyLimit:  NewBodyLimitOptions(),
	}
}

// IsEnabled 判断指定中间件是否在启用列表中。
func (o *Options) IsEnabled(name string) bool {
	for _, m := range o.Middleware {
		if m == name {
			return true
		}
	}
	return false
}

// AddFlags adds flags for all middleware options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringSliceVar(&o.Middleware, "middleware.order", o.Middleware, "Enabled middleware in application order.")
	o.Recovery.AddFlags(fs, prefixes...)
	o.RequestID.AddFlags(fs, prefixes...)
	o.Logger.AddFlags(fs, prefixes...)
	o.CORS.AddFlags(fs, prefixes...)
	o.BodyLimit.AddFlags(fs, prefixes...)
}

// Validate validates all middleware options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	known := map[string]bool{}
	for _, n := range DefaultOrder {
		known[n] = true
	}
	for _, m := range o.Middleware {
		if !known[m] {
			errs = append(errs, &ConfigError{Field: "middleware", Message: "unknown middleware " + m})
		}
	}
	errs = append(errs, o.RequestID.Validate()...)
	errs = append(errs, o.CORS.Validate()...)
	errs = append(errs, o.BodyLimit.Validate()...)
	return errs
}

// Complete completes all middleware options.
func (o *Options) Complete() error {
	if len(o.Middleware) == 0 {
		o.Middleware = append([]string(nil), DefaultOrder...)
	}
	return nil
}

// ConfigError 表示配置错误。
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return "config error in field \"" + e.Field + "\": " + e.Message
	}
	return e.Message
}
