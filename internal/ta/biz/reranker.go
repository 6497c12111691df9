package biz

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kart-io/logger"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/pkg/llm"
)

// PairScorer 为 (query, text) 对打相关度分，越大越相关。
// 单个文本打分失败时对应位置返回 NaN；返回 error 表示整批失败。
type PairScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker 按相关度重新排序候选。
type Reranker struct {
	metrics *metrics.Metrics
}

// NewReranker 创建重排序器。
func NewReranker(m *metrics.Metrics) *Reranker {
	if m == nil {
		m = metrics.Default()
	}
	return &Reranker{metrics: m}
}

// Rerank 返回按相关度降序的新切片，相同分数保持检索顺序。
// 打分失败的候选得分为 -Inf，排在最后，不会中断整批。
func (r *Reranker) Rerank(ctx context.Context, scorer PairScorer, query string, candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Fragment.Text
	}

	scores, err := scorer.Score(ctx, query, texts)
	if err != nil {
		logger.Warnw("Rerank scoring failed, keeping retrieval order", "error", err.Error(), "candidates", len(candidates))
		scores = nil
	}

	out := make([]Candidate, len(candidates))
	failed := 0
	for i, c := range candidates {
		s := math.Inf(-1)
		if i < len(scores) && !math.IsNaN(scores[i]) {
			s = scores[i]
		} else {
			failed++
		}
		c.Score = s
		out[i] = c
	}
	r.metrics.RecordRerankFailures(failed)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// CrossEncoderScorer 通过 rerank 接口（cross-encoder 模型）批量打分。
type CrossEncoderScorer struct {
	provider llm.RerankProvider
}

// NewCrossEncoderScorer 创建 cross-encoder 打分器。
func NewCrossEncoderScorer(p llm.RerankProvider) *CrossEncoderScorer {
	return &CrossEncoderScorer{provider: p}
}

// Score 实现 PairScorer。
func (s *CrossEncoderScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores, err := s.provider.Rerank(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("%s rerank: %w", s.provider.Name(), err)
	}
	return scores, nil
}

const llmScorePrompt = `Rate how well the passage answers the question on a scale from 0 to 10.
Reply with the number only.

Question: %s

Passage: %s`

var scorePattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// LLMScorer 用对话模型逐对打分，适合没有 cross-encoder 服务的部署。
type LLMScorer struct {
	chat        llm.ChatProvider
	concurrency int
}

// NewLLMScorer 创建 LLM 打分器，concurrency 限制同时进行的对话数。
func NewLLMScorer(chat llm.ChatProvider, concurrency int) *LLMScorer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &LLMScorer{chat: chat, concurrency: concurrency}
}

// Score 实现 PairScorer，单对失败记为 NaN。
func (s *LLMScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			reply, err := s.chat.Chat(gctx, []llm.Message{
				{Role: llm.RoleUser, Content: fmt.Sprintf(llmScorePrompt, query, text)},
			})
			if err != nil {
				scores[i] = math.NaN()
				return nil
			}
			scores[i] = parseScore(reply)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

// parseScore 取回复中的第一个数字，解析失败返回 NaN。
func parseScore(reply string) float64 {
	m := scorePattern.FindString(strings.TrimSpace(reply))
	if m == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
