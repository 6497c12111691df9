package pool

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/virtual-ta/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 推理池配置。
type Options struct {
	// Workers 并发推理 worker 数
	Workers int `json:"workers" mapstructure:"workers"`
	// QueueSize 允许排队的请求数，超出即返回过载
	QueueSize int `json:"queue-size" mapstructure:"queue-size"`
	// IdleExpiry worker 空闲回收时间
	IdleExpiry time.Duration `json:"idle-expiry" mapstructure:"idle-expiry"`
}

// NewOptions 创建默认推理池配置，worker 数默认等于 CPU 数。
func NewOptions() *Options {
	c := InferencePoolConfig()
	return &Options{
		Workers:    runtime.NumCPU(),
		QueueSize:  c.MaxBlockingTasks,
		IdleExpiry: c.ExpiryDuration,
	}
}

// AddFlags adds flags for pool options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pool."
	fs.IntVar(&o.Workers, p+"workers", o.Workers, "Number of concurrent inference workers.")
	fs.IntVar(&o.QueueSize, p+"queue-size", o.QueueSize, "Requests allowed to wait for a worker before the service reports overload.")
	fs.DurationVar(&o.IdleExpiry, p+"idle-expiry", o.IdleExpiry, "Idle worker expiry.")
}

// Validate validates the pool options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pool.workers must be positive"))
	}
	if o.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("pool.queue-size must not be negative"))
	}
	return errs
}

// ToConfig 转换为推理池配置。queue-size 为 0 时池满立即拒绝。
func (o *Options) ToConfig() *Config {
	c := InferencePoolConfig()
	c.Capacity = o.Workers
	c.MaxBlockingTasks = o.QueueSize
	c.Nonblocking = o.QueueSize == 0
	if o.IdleExpiry > 0 {
		c.ExpiryDuration = o.IdleExpiry
	}
	return c
}
