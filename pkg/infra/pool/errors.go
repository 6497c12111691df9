// Package pool provides bounded worker pools backed by ants.
package pool

import "errors"

// 池相关错误定义
var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("池已关闭")

	// ErrPoolOverload 池已满，调用方应稍后重试
	ErrPoolOverload = errors.New("池已满")

	// ErrInvalidPoolConfig 无效的池配置
	ErrInvalidPoolConfig = errors.New("无效的池配置")
)
