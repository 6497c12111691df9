package biz

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/internal/ta/store"
	"github.com/kart-io/virtual-ta/pkg/llm"
)

func candidates(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{Position: i, Fragment: store.Fragment{Text: fmt.Sprintf("text %d", i)}}
	}
	return out
}

func positions(cands []Candidate) []int {
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.Position
	}
	return out
}

func TestRerankSortsDescendingAndStable(t *testing.T) {
	r := NewReranker(metrics.New())
	out := r.Rerank(context.Background(), &fakeScorer{scores: []float64{0.2, 0.9, 0.2, 0.5}}, "q", candidates(4))

	assert.Equal(t, []int{1, 3, 0, 2}, positions(out))
	assert.Equal(t, 0.9, out[0].Score)
}

func TestRerankFailedPairsSinkToBottom(t *testing.T) {
	r := NewReranker(metrics.New())
	out := r.Rerank(context.Background(), &fakeScorer{scores: []float64{math.NaN(), 0.1, math.NaN()}}, "q", candidates(3))

	assert.Equal(t, []int{1, 0, 2}, positions(out))
	assert.True(t, isNegInf(out[1].Score))
	assert.True(t, isNegInf(out[2].Score))
}

func TestRerankBatchFailureKeepsRetrievalOrder(t *testing.T) {
	r := NewReranker(metrics.New())
	in := candidates(3)
	out := r.Rerank(context.Background(), &fakeScorer{err: fmt.Errorf("model crashed")}, "q", in)

	assert.Equal(t, []int{0, 1, 2}, positions(out))
	for _, c := range out {
		assert.True(t, isNegInf(c.Score))
	}
	// 输入不被修改
	assert.Equal(t, 0.0, in[0].Score)
}

func TestRerankEmpty(t *testing.T) {
	assert.Empty(t, NewReranker(metrics.New()).Rerank(context.Background(), &fakeScorer{}, "q", nil))
}

type fakeChat struct {
	replies map[string]string
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	for text, reply := range f.replies {
		if containsPassage(messages[0].Content, text) {
			if reply == "" {
				return "", fmt.Errorf("chat failed")
			}
			return reply, nil
		}
	}
	return "0", nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

func containsPassage(prompt, text string) bool {
	return len(prompt) >= len(text) && prompt[len(prompt)-len(text):] == text
}

func TestLLMScorer(t *testing.T) {
	s := NewLLMScorer(&fakeChat{replies: map[string]string{
		"alpha": "8",
		"beta":  "Score: 3.5 out of 10",
		"gamma": "",
		"delta": "no idea",
	}}, 2)

	scores, err := s.Score(context.Background(), "q", []string{"alpha", "beta", "gamma", "delta"})
	require.NoError(t, err)
	assert.Equal(t, 8.0, scores[0])
	assert.Equal(t, 3.5, scores[1])
	assert.True(t, math.IsNaN(scores[2]))
	assert.True(t, math.IsNaN(scores[3]))
}

type fakeRerankProvider struct {
	scores []float64
	err    error
}

func (f *fakeRerankProvider) Rerank(context.Context, string, []string) ([]float64, error) {
	return f.scores, f.err
}

func (f *fakeRerankProvider) Name() string { return "fake-rerank" }

func TestCrossEncoderScorer(t *testing.T) {
	s := NewCrossEncoderScorer(&fakeRerankProvider{scores: []float64{1, 2}})
	scores, err := s.Score(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, scores)

	_, err = NewCrossEncoderScorer(&fakeRerankProvider{err: fmt.Errorf("503")}).Score(context.Background(), "q", []string{"a"})
	assert.ErrorContains(t, err, "fake-rerank")
}
