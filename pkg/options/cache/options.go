// Package cache provides cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/virtual-ta/pkg/options"
	redisopts "github.com/kart-io/virtual-ta/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options 应答与查询向量缓存配置。
type Options struct {
	// Enabled 是否启用缓存。Redis 不可达时服务仍以无缓存方式启动。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// AnswerTTL 完整应答的缓存时间。
	AnswerTTL time.Duration `json:"answer-ttl" mapstructure:"answer-ttl"`

	// EmbeddingTTL 查询向量的缓存时间。
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis Redis 连接配置。
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions 创建默认缓存配置，默认关闭。
func NewOptions() *Options {
	return &Options{
		Enabled:      false,
		AnswerTTL:    10 * time.Minute,
		EmbeddingTTL: 24 * time.Hour,
		KeyPrefix:    "vta:",
		Redis:        redisopts.NewOptions(),
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Enable the Redis answer and embedding cache.")
	fs.DurationVar(&o.AnswerTTL, p+"answer-ttl", o.AnswerTTL, "TTL of cached answers.")
	fs.DurationVar(&o.EmbeddingTTL, p+"embedding-ttl", o.EmbeddingTTL, "TTL of cached query embeddings.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Cache key prefix.")

	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	o.Redis.AddFlags(fs, prefixes...)
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.AnswerTTL <= 0 || o.EmbeddingTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttls must be positive"))
	}
	if o.Redis != nil {
		errs = append(errs, o.Redis.Validate()...)
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	return o.Redis.Complete()
}
