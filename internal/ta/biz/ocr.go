package biz

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kart-io/logger"
)

// Recognizer 图片文字识别引擎，llm.VisionProvider 满足该接口。
type Recognizer interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// ImageTextExtractor 从图片中提取文字。失败时一律返回空串，不向上传播。
type ImageTextExtractor struct{}

// NewImageTextExtractor 创建提取器。
func NewImageTextExtractor() *ImageTextExtractor {
	return &ImageTextExtractor{}
}

// Extract 识别图片中的文字。
func (e *ImageTextExtractor) Extract(ctx context.Context, rec Recognizer, image []byte) string {
	if len(image) == 0 || rec == nil {
		return ""
	}

	mt := mimetype.Detect(image)
	if !strings.HasPrefix(mt.String(), "image/") {
		logger.Warnw("Ignoring attachment that is not an image", "detected", mt.String(), "size", len(image))
		return ""
	}

	text, err := rec.ExtractText(ctx, image, mt.String())
	if err != nil {
		logger.Warnw("Image text extraction failed, continuing without it", "mime", mt.String(), "error", err.Error())
		return ""
	}
	return strings.TrimSpace(text)
}

// MergeQuestion 合并问题与图片文字：问题为空时使用图片文字，否则以换行追加。
func MergeQuestion(question, extracted string) string {
	question = strings.TrimSpace(question)
	extracted = strings.TrimSpace(extracted)
	switch {
	case question == "":
		return extracted
	case extracted == "":
		return question
	default:
		return question + "\n" + extracted
	}
}

// DecodeImage 解码请求中的 base64 图片，允许 data URL 前缀与无填充编码。
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = s[i+1:]
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("image is not valid base64")
}
