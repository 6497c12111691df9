package middleware

import (
	"errors"

	"github.com/kart-io/virtual-ta/pkg/options"
	"github.com/spf13/pflag"
)

// RequestIDOptions defines request ID middleware options.
type RequestIDOptions struct {
	Header string `json:"header" mapstructure:"header"`
	// GeneratorType 指定 ID 生成器类型: "random"/"hex"（32 字符十六进制）或 "ulid"（26 字符，时间有序）。
	GeneratorType string `json:"generator_type" mapstructure:"generator_type"`
}

// NewRequestIDOptions creates default request ID middleware options.
func NewRequestIDOptions() *RequestIDOptions {
	return &RequestIDOptions{
		Header:        "X-Request-ID",
		GeneratorType: "ulid",
	}
}

// AddFlags adds flags for request ID options to the specified FlagSet.
func (o *RequestIDOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Header, options.Join(prefixes...)+"middleware.request-id.header", o.Header, "Request ID header name.")
	fs.StringVar(&o.GeneratorType, options.Join(prefixes...)+"middleware.request-id.generator", o.GeneratorType, "ID generator type: random/hex or ulid.")
}

// Validate validates the request ID options.
func (o *RequestIDOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Header == "" {
		errs = append(errs, errors.New("request ID header name is required"))
	}
	switch o.GeneratorType {
	case "random", "hex", "ulid", "":
	default:
		errs = append(errs, errors.New("invalid generator type: must be 'random', 'hex', or 'ulid'"))
	}
	return errs
}
