// Package llm provides inference provider configuration options.
package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/virtual-ta/pkg/options"
	"github.com/kart-io/virtual-ta/pkg/utils/validator"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义单个推理角色（embedding / reranker / ocr）的供应商配置。
type ProviderOptions struct {
	// Enabled 为 false 时该角色不加载。embedding 角色始终启用。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Provider 供应商名称（ollama, openai, huggingface）。
	Provider string `json:"provider" mapstructure:"provider" validate:"required,nowhitespace"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url" validate:"required,httpurl"`

	// APIKey API 密钥，为空时读取 {ROLE}_API_KEY 环境变量。
	APIKey string `json:"-" mapstructure:"api-key" validate:"trimmed"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model" validate:"required,nowhitespace"`

	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	role string
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		Enabled:    true,
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Model:      "all-minilm",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		role:       "embedding",
	}
}

// NewRerankerOptions 创建默认交叉编码器配置，默认关闭。
func NewRerankerOptions() *ProviderOptions {
	return &ProviderOptions{
		Enabled:    false,
		Provider:   "huggingface",
		BaseURL:    "http://localhost:8080",
		Model:      "cross-encoder/ms-marco-MiniLM-L-6-v2",
		Timeout:    30 * time.Second,
		MaxRetries: 0,
		role:       "reranker",
	}
}

// NewOCROptions 创建默认图片文字识别配置，默认关闭。
func NewOCROptions() *ProviderOptions {
	return &ProviderOptions{
		Enabled:    false,
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Model:      "llava",
		Timeout:    60 * time.Second,
		MaxRetries: 0,
		role:       "ocr",
	}
}

// Role 返回配置所属角色。
func (o *ProviderOptions) Role() string {
	return o.role
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"vision_model": o.Model,
		"rerank_model": o.Model,
		"rerank_url":   o.BaseURL,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for the provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + o.role + "."
	if o.role != "embedding" {
		fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, fmt.Sprintf("Enable the %s stage.", o.role))
	}
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Inference provider (ollama, openai, huggingface).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Provider API base URL.")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Per-call timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (optional).")
}

// Validate validates the provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	for _, err := range validator.StructErrors(o) {
		errs = append(errs, fmt.Errorf("%s: %w", o.role, err))
	}
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s: api key is required for openai provider", o.role))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", o.role))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s.max-retries must not be negative", o.role))
	}
	return errs
}

// Complete 从环境变量补全 API 密钥，例如 EMBEDDING_API_KEY。
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv(envKey(o.role))
	}
	return nil
}

func envKey(role string) string {
	return strings.ToUpper(role) + "_API_KEY"
}
