package redis

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
)

// loggingAdapter routes go-redis internal messages to the unified logger.
type loggingAdapter struct{}

func (loggingAdapter) Printf(_ context.Context, format string, v ...interface{}) {
	logger.Debugw("redis client", "message", fmt.Sprintf(format, v...))
}

func init() {
	goredis.SetLogger(loggingAdapter{})
}
