package biz

import (
	"github.com/kart-io/virtual-ta/internal/ta/store"
)

// Query 一次查询请求，请求内不可变。
type Query struct {
	Text  string
	Image []byte
}

// Candidate 检索或重排序后的候选片段。
// 检索后 Score 为 L2 距离（越小越好），重排序后为相关度（越大越好）。
type Candidate struct {
	Fragment store.Fragment
	Position int
	Score    float64
}

// Link 答案引用的来源。
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Answer 返回给调用方的答案。
type Answer struct {
	Answer string `json:"answer"`
	Links  []Link `json:"links"`
}

// 固定答案文本
const (
	AnswerInvalidRequest = "Invalid request format"
	AnswerNoQuestion     = "No question provided."
	AnswerNoMatch        = "No relevant content found."
)

// CannedAnswer 返回不带链接的固定答案，Links 序列化为 []。
func CannedAnswer(text string) *Answer {
	return &Answer{Answer: text, Links: []Link{}}
}
