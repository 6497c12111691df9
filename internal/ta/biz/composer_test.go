package biz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/store"
)

func TestComposeDeduplicatesLinks(t *testing.T) {
	frags := testFragments()
	a := NewAnswerComposer(2, 300).Compose([]Candidate{
		{Fragment: frags[0]},
		{Fragment: frags[1]},
		{Fragment: frags[2]},
	})
	require.NotNil(t, a)

	assert.Equal(t, "Here's what I found:\n- The GA1 deadline is Sunday 23:59 IST....\n- Late submissions are not accepted for GA1....", a.Answer)
	assert.Equal(t, []Link{{URL: frags[0].URL, Text: "GA1 deadline"}}, a.Links)
}

func TestComposeDefaultLabelAndCap(t *testing.T) {
	frags := testFragments()
	a := NewAnswerComposer(2, 300).Compose([]Candidate{
		{Fragment: frags[2]},
		{Fragment: frags[3]},
		{Fragment: frags[0]},
	})
	require.NotNil(t, a)
	assert.Equal(t, []Link{
		{URL: frags[2].URL, Text: "Source"},
		{URL: frags[3].URL, Text: "Misc"},
	}, a.Links)
	assert.Equal(t, 2, strings.Count(a.Answer, "\n- "))
}

func TestComposeSkipsEmptyURL(t *testing.T) {
	a := NewAnswerComposer(2, 300).Compose([]Candidate{{Fragment: store.Fragment{Text: "no link"}}})
	require.NotNil(t, a)
	assert.NotNil(t, a.Links)
	assert.Empty(t, a.Links)
	assert.Equal(t, "Here's what I found:\n- no link...", a.Answer)
}

func TestComposeEmpty(t *testing.T) {
	assert.Nil(t, NewAnswerComposer(2, 300).Compose(nil))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b  c", Snippet("  a\nb\r\n\nc  ", 300))
	assert.Equal(t, "héllo", Snippet("héllo wörld", 5))
	assert.Equal(t, "日本語", Snippet("日本語のテキスト", 3))
	assert.Len(t, []rune(Snippet(strings.Repeat("x", 1000), 300)), 300)
}
