// Package ollama 提供 Ollama 推理供应商实现。
package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/virtual-ta/pkg/llm"
	"github.com/kart-io/virtual-ta/pkg/utils/httpclient"
)

const ProviderName = "ollama"

// DefaultOCRPrompt 用于视觉模型的文字识别提示词。
const DefaultOCRPrompt = "Transcribe all text visible in this image exactly. Reply with the text only."

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
	llm.RegisterVisionProvider(ProviderName, func(configMap map[string]any) (llm.VisionProvider, error) {
		return newFromMap(configMap), nil
	})
}

// Config Ollama 供应商配置。
type Config struct {
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	EmbedModel  string        `json:"embed_model" mapstructure:"embed_model"`
	ChatModel   string        `json:"chat_model" mapstructure:"chat_model"`
	VisionModel string        `json:"vision_model" mapstructure:"vision_model"`
	OCRPrompt   string        `json:"ocr_prompt" mapstructure:"ocr_prompt"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://localhost:11434",
		EmbedModel:  "all-minilm",
		ChatModel:   "llama3.2",
		VisionModel: "llava",
		OCRPrompt:   DefaultOCRPrompt,
		Timeout:     120 * time.Second,
		MaxRetries:  3,
	}
}

// Provider Ollama 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 Ollama 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	return newFromMap(configMap), nil
}

func newFromMap(configMap map[string]any) *Provider {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["vision_model"].(string); ok && v != "" {
		cfg.VisionModel = v
	}
	if v, ok := configMap["ocr_prompt"].(string); ok && v != "" {
		cfg.OCRPrompt = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}

	return NewProviderWithConfig(cfg)
}

// NewProviderWithConfig 使用结构化配置创建 Ollama 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/api/embed", nil,
		embedRequest{Model: p.config.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Chat 进行多轮对话。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	msgs := make([]chatMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return p.chat(ctx, p.config.ChatModel, msgs)
}

func (p *Provider) chat(ctx context.Context, model string, msgs []chatMessage) (string, error) {
	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/api/chat", nil,
		chatRequest{Model: model, Messages: msgs}, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return resp.Message.Content, nil
}

// ExtractText 使用视觉模型识别图片中的文字。
func (p *Provider) ExtractText(ctx context.Context, image []byte, _ string) (string, error) {
	msgs := []chatMessage{{
		Role:    string(llm.RoleUser),
		Content: p.config.OCRPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	}}
	text, err := p.chat(ctx, p.config.VisionModel, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Ping 检查 Ollama 服务是否可用。
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	return p.client.DoJSON(req, nil)
}

var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.VisionProvider = (*Provider)(nil)
)
