package middleware

import (
	"github.com/spf13/pflag"

	"github.com/kart-io/virtual-ta/pkg/options"
)

// LoggerOptions defines logger middleware options.
type LoggerOptions struct {
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
}

// NewLoggerOptions creates default logger middleware options.
func NewLoggerOptions() *LoggerOptions {
	return &LoggerOptions{
		SkipPaths: []string{"/healthz", "/readyz", "/metrics"},
	}
}

// AddFlags adds flags for logger options to the specified FlagSet.
func (o *LoggerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringSliceVar(&o.SkipPaths, options.Join(prefixes...)+"middleware.logger.skip-paths", o.SkipPaths, "Paths to skip logging.")
}
