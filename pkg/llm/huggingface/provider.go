// Package huggingface 提供 HuggingFace Inference API 与 text-embeddings-inference
// 服务的供应商实现，覆盖 Embedding、文本生成与交叉编码器重排序。
package huggingface

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kart-io/virtual-ta/pkg/llm"
	"github.com/kart-io/virtual-ta/pkg/utils/httpclient"
	"github.com/kart-io/virtual-ta/pkg/utils/json"
)

// ProviderName 是 HuggingFace 供应商的名称标识符
const ProviderName = "huggingface"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
	llm.RegisterRerankProvider(ProviderName, func(configMap map[string]any) (llm.RerankProvider, error) {
		return newFromMap(configMap), nil
	})
}

// Config HuggingFace 供应商配置。
type Config struct {
	// BaseURL Inference API 基础地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey HuggingFace API Token，自建 TEI 服务可为空。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	EmbedModel  string `json:"embed_model" mapstructure:"embed_model"`
	ChatModel   string `json:"chat_model" mapstructure:"chat_model"`
	RerankModel string `json:"rerank_model" mapstructure:"rerank_model"`

	// RerankURL text-embeddings-inference 服务地址，请求发往 {RerankURL}/rerank。
	RerankURL string `json:"rerank_url" mapstructure:"rerank_url"`

	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`

	// WaitForModel 如果模型正在加载，是否等待。
	WaitForModel bool `json:"wait_for_model" mapstructure:"wait_for_model"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api-inference.huggingface.co",
		EmbedModel:   "sentence-transformers/all-MiniLM-L6-v2",
		ChatModel:    "mistralai/Mistral-7B-Instruct-v0.2",
		RerankModel:  "cross-encoder/ms-marco-MiniLM-L-6-v2",
		RerankURL:    "http://localhost:8080",
		Timeout:      120 * time.Second,
		MaxRetries:   3,
		WaitForModel: true,
	}
}

// Provider HuggingFace 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 HuggingFace 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	return newFromMap(configMap), nil
}

func newFromMap(configMap map[string]any) *Provider {
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
	if v, ok := configMap["rerank_model"].(string); ok && v != "" {
		cfg.RerankModel = v
	}
	if v, ok := configMap["rerank_url"].(string); ok && v != "" {
		cfg.RerankURL = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, ok := configMap["wait_for_model"].(bool); ok {
		cfg.WaitForModel = v
	}

	return NewProviderWithConfig(cfg)
}

// NewProviderWithConfig 使用结构化配置创建 HuggingFace 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.RerankURL = strings.TrimRight(cfg.RerankURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model,omitempty"`
}

type embeddingRequest struct {
	Inputs  []string          `json:"inputs"`
	Options *inferenceOptions `json:"options,omitempty"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{Inputs: texts}
	if p.config.WaitForModel {
		req.Options = &inferenceOptions{WaitForModel: true}
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", p.config.BaseURL, p.config.EmbedModel)
	var raw json.RawMessage
	if err := p.client.PostJSON(ctx, url, p.headers(), req, &raw); err != nil {
		return nil, fmt.Errorf("huggingface embed: %w", err)
	}

	embeddings, err := decodeEmbeddings(raw)
	if err != nil {
		return nil, fmt.Errorf("huggingface embed: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("huggingface embed: expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	return embeddings, nil
}

// decodeEmbeddings 解析句向量；token 级输出（三维数组）取平均池化。
func decodeEmbeddings(raw []byte) ([][]float32, error) {
	var embeddings [][]float32
	if err := json.Unmarshal(raw, &embeddings); err == nil {
		return embeddings, nil
	}

	var tokenEmbeddings [][][]float32
	if err := json.Unmarshal(raw, &tokenEmbeddings); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	embeddings = make([][]float32, len(tokenEmbeddings))
	for i, tokens := range tokenEmbeddings {
		if len(tokens) == 0 {
			continue
		}
		embeddings[i] = make([]float32, len(tokens[0]))
		for _, token := range tokens {
			for j, v := range token {
				embeddings[i][j] += v
			}
		}
		for j := range embeddings[i] {
			embeddings[i][j] /= float32(len(tokens))
		}
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type generateRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters *generateParams   `json:"parameters,omitempty"`
	Options    *inferenceOptions `json:"options,omitempty"`
}

type generateParams struct {
	MaxNewTokens   int  `json:"max_new_tokens,omitempty"`
	ReturnFullText bool `json:"return_full_text"`
}

// Chat 将消息格式化为 Mistral 指令模板后生成文本。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := generateRequest{
		Inputs:     formatMessages(messages),
		Parameters: &generateParams{MaxNewTokens: 256},
	}
	if p.config.WaitForModel {
		req.Options = &inferenceOptions{WaitForModel: true}
	}

	var resp []struct {
		GeneratedText string `json:"generated_text"`
	}
	url := fmt.Sprintf("%s/models/%s", p.config.BaseURL, p.config.ChatModel)
	if err := p.client.PostJSON(ctx, url, p.headers(), req, &resp); err != nil {
		return "", fmt.Errorf("huggingface chat: %w", err)
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("huggingface chat: 未返回响应内容")
	}
	return resp[0].GeneratedText, nil
}

func formatMessages(messages []llm.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleAssistant:
			b.WriteString(msg.Content + "\n")
		default:
			b.WriteString("[INST] " + msg.Content + " [/INST]\n")
		}
	}
	return b.String()
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank 调用 text-embeddings-inference 的 /rerank 接口对 (query, document) 打分。
// 服务未返回的下标记为 NaN。
func (p *Provider) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	var results []rerankResult
	if err := p.client.PostJSON(ctx, p.config.RerankURL+"/rerank", p.headers(),
		rerankRequest{Query: query, Texts: documents, RawScores: true}, &results); err != nil {
		return nil, fmt.Errorf("huggingface rerank: %w", err)
	}

	scores := make([]float64, len(documents))
	for i := range scores {
		scores[i] = math.NaN()
	}
	for _, r := range results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.Score
		}
	}
	return scores, nil
}

func (p *Provider) headers() map[string]string {
	if p.config.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.config.APIKey}
}

var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.RerankProvider = (*Provider)(nil)
)
