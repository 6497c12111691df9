package biz

import (
	"strings"
)

const (
	answerIntro  = "Here's what I found:\n"
	defaultLabel = "Source"
)

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// AnswerComposer 由排好序的候选组装答案。
type AnswerComposer struct {
	maxFragments  int
	snippetLength int
}

// NewAnswerComposer 创建答案组装器。
func NewAnswerComposer(maxFragments, snippetLength int) *AnswerComposer {
	if maxFragments <= 0 {
		maxFragments = 2
	}
	if snippetLength <= 0 {
		snippetLength = 300
	}
	return &AnswerComposer{maxFragments: maxFragments, snippetLength: snippetLength}
}

// Compose 取前 maxFragments 个候选，生成摘要列表与按 URL 去重的链接。
// 候选为空时返回 nil，由调用方处理无匹配的情况。
func (c *AnswerComposer) Compose(candidates []Candidate) *Answer {
	if len(candidates) == 0 {
		return nil
	}

	selected := candidates
	if len(selected) > c.maxFragments {
		selected = selected[:c.maxFragments]
	}

	var b strings.Builder
	b.WriteString(answerIntro)
	links := make([]Link, 0, len(selected))
	seen := make(map[string]struct{}, len(selected))

	for _, cand := range selected {
		b.WriteString("- ")
		b.WriteString(Snippet(cand.Fragment.Text, c.snippetLength))
		b.WriteString("...\n")

		url := cand.Fragment.URL
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		label := cand.Fragment.Title
		if label == "" {
			label = defaultLabel
		}
		links = append(links, Link{URL: url, Text: label})
	}

	if len(links) > c.maxFragments {
		links = links[:c.maxFragments]
	}
	return &Answer{Answer: strings.TrimSpace(b.String()), Links: links}
}

// Snippet 截取前 n 个字符，换行替换为空格并去掉首尾空白。
func Snippet(text string, n int) string {
	r := []rune(text)
	if len(r) > n {
		r = r[:n]
	}
	return strings.TrimSpace(newlineReplacer.Replace(string(r)))
}
