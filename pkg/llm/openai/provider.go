// Package openai 提供 OpenAI 及兼容 API（LocalAI、vLLM 等）的推理供应商实现。
//
// 基本用法：
//
//	import _ "github.com/kart-io/virtual-ta/pkg/llm/openai"
//
//	provider, err := llm.NewProvider("openai", map[string]any{
//	    "api_key": "your-api-key",
//	})
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kart-io/virtual-ta/pkg/llm"
	"github.com/kart-io/virtual-ta/pkg/utils/httpclient"
)

// ProviderName 是 OpenAI 供应商的名称标识符
const ProviderName = "openai"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
	llm.RegisterVisionProvider(ProviderName, func(configMap map[string]any) (llm.VisionProvider, error) {
		p, err := newFromMap(configMap)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Config OpenAI 供应商配置。
type Config struct {
	// BaseURL API 基础地址，可设置为兼容 API 地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	EmbedModel  string `json:"embed_model" mapstructure:"embed_model"`
	ChatModel   string `json:"chat_model" mapstructure:"chat_model"`
	VisionModel string `json:"vision_model" mapstructure:"vision_model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	// Organization 组织 ID（可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// Temperature 为 0 时不下发，使用 API 默认值。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 为 0 时不下发。
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		EmbedModel:  "text-embedding-3-small",
		ChatModel:   "gpt-4o-mini",
		VisionModel: "gpt-4o-mini",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
	}
}

// Provider OpenAI 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 OpenAI 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	p, err := newFromMap(configMap)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newFromMap(configMap map[string]any) (*Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
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
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, ok := configMap["organization"].(string); ok {
		cfg.Organization = v
	}
	if v, ok := configMap["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := configMap["max_tokens"].(int); ok {
		cfg.MaxTokens = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 OpenAI 供应商。
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

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed 为多个文本生成向量嵌入，按请求顺序返回。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/embeddings", p.headers(),
		embeddingRequest{Model: p.config.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatMessage 的 Content 为字符串或多模态分段数组。
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat 进行多轮对话。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return p.complete(ctx, p.config.ChatModel, msgs)
}

// ExtractText 通过多模态对话识别图片中的文字。
func (p *Provider) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	msgs := []chatMessage{{
		Role: string(llm.RoleUser),
		Content: []contentPart{
			{Type: "text", Text: "Transcribe all text visible in this image exactly. Reply with the text only."},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	}}
	text, err := p.complete(ctx, p.config.VisionModel, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *Provider) complete(ctx context.Context, model string, msgs []chatMessage) (string, error) {
	req := chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/chat/completions", p.headers(), req, &resp); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: 未返回响应内容")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) headers() map[string]string {
	h := map[string]string{"Authorization": "Bearer " + p.config.APIKey}
	if p.config.Organization != "" {
		h["OpenAI-Organization"] = p.config.Organization
	}
	return h
}

var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.VisionProvider = (*Provider)(nil)
)
