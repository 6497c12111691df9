// Package llm 提供模型推理供应商的统一抽象层。
// Embedding、Rerank、Vision 可分别使用不同供应商。
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// ChatProvider 定义 Chat 供应商接口。
type ChatProvider interface {
	// Chat 进行多轮对话。
	Chat(ctx context.Context, messages []Message) (string, error)

	// Name 返回供应商名称。
	Name() string
}

// RerankProvider 定义交叉编码器打分接口。
// 返回的分数与 documents 一一对应，未能打分的位置为 NaN。
type RerankProvider interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
	Name() string
}

// VisionProvider 定义图片文字识别接口。
type VisionProvider interface {
	// ExtractText 识别图片中的文字，mimeType 为嗅探得到的图片类型。
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
	Name() string
}

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Provider 同时支持 Embedding 和 Chat 的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

// RerankProviderFactory Rerank 供应商工厂函数类型。
type RerankProviderFactory func(config map[string]any) (RerankProvider, error)

// VisionProviderFactory Vision 供应商工厂函数类型。
type VisionProviderFactory func(config map[string]any) (VisionProvider, error)

var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
	rerankers: make(map[string]RerankProviderFactory),
	visions:   make(map[string]VisionProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
	rerankers map[string]RerankProviderFactory
	visions   map[string]VisionProviderFactory
}

// RegisterProvider 注册完整供应商工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// RegisterRerankProvider 注册 Rerank 供应商工厂。
func RegisterRerankProvider(name string, factory RerankProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.rerankers[name] = factory
}

// RegisterVisionProvider 注册 Vision 供应商工厂。
func RegisterVisionProvider(name string, factory VisionProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.visions[name] = factory
}

// NewProvider 根据名称创建完整供应商实例。
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return factory(config)
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("unknown embedding provider: %s", name)
	}
	return p, nil
}

// NewChatProvider 根据名称创建 Chat 供应商实例。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("unknown chat provider: %s", name)
	}
	return p, nil
}

// NewRerankProvider 根据名称创建 Rerank 供应商实例。
func NewRerankProvider(name string, config map[string]any) (RerankProvider, error) {
	registry.mu.RLock()
	factory, ok := registry.rerankers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown rerank provider: %s", name)
	}
	return factory(config)
}

// NewVisionProvider 根据名称创建 Vision 供应商实例。
func NewVisionProvider(name string, config map[string]any) (VisionProvider, error) {
	registry.mu.RLock()
	factory, ok := registry.visions[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown vision provider: %s", name)
	}
	return factory(config)
}

// ListProviders 列出所有已注册的供应商名称（去重、排序）。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for name := range registry.providers {
		add(name)
	}
	for name := range registry.rerankers {
		add(name)
	}
	for name := range registry.visions {
		add(name)
	}

	sort.Strings(names)
	return names
}
