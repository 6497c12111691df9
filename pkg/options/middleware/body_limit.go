package middleware

import (
	"errors"

	"github.com/kart-io/virtual-ta/pkg/options"
	"github.com/spf13/pflag"
)

// BodyLimitOptions 定义请求体大小限制中间件的配置选项。
// 用于防止恶意客户端发送超大请求体导致服务器资源耗尽（DoS 攻击）。
type BodyLimitOptions struct {
	// MaxSize 最大请求体大小（字节）。
	MaxSize int64 `json:"max-size" mapstructure:"max-size"`

	// SkipPaths 跳过检查的精确路径列表。
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`

	// SkipPathPrefixes 跳过检查的路径前缀列表。
	SkipPathPrefixes []string `json:"skip-path-prefixes" mapstructure:"skip-path-prefixes"`
}

// NewBodyLimitOptions 创建默认的 BodyLimit 中间件配置。
// 请求可携带 base64 图片，默认上限为 10MB。
func NewBodyLimitOptions() *BodyLimitOptions {
	return &BodyLimitOptions{
		MaxSize:          10 * 1024 * 1024,
		SkipPaths:        []string{},
		SkipPathPrefixes: []string{},
	}
}

// AddFlags 添加 BodyLimit 配置的命令行标志。
func (o *BodyLimitOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Int64Var(&o.MaxSize, options.Join(prefixes...)+"middleware.body-limit.max-size", o.MaxSize, "Maximum request body size in bytes.")
	fs.StringSliceVar(&o.SkipPaths, options.Join(prefixes...)+"middleware.body-limit.skip-paths", o.SkipPaths, "Skip paths for body limit middleware.")
	fs.StringSliceVar(&o.SkipPathPrefixes, options.Join(prefixes...)+"middleware.body-limit.skip-path-prefixes", o.SkipPathPrefixes, "Skip path prefixes for body limit middleware.")
}

// Validate 验证 BodyLimit 配置的有效性。
func (o *BodyLimitOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.MaxSize <= 0 {
		errs = append(errs, errors.New("body-limit: MaxSize must be greater than 0"))
	}
	return errs
}
