// Package indexer builds the virtual TA index artifacts from forum post dumps.
package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/kart-io/virtual-ta/internal/ta/store"
	"github.com/kart-io/virtual-ta/pkg/utils/json"
)

// Post 论坛帖子导出记录。topic_id 与 post_number 在不同导出中可能是数字或字符串。
type Post struct {
	Content    string `json:"content" yaml:"content"`
	PostURL    string `json:"post_url" yaml:"post_url"`
	PostNumber any    `json:"post_number" yaml:"post_number"`
	TopicID    any    `json:"topic_id" yaml:"topic_id"`
	TopicTitle string `json:"topic_title" yaml:"topic_title"`
}

// Discover 展开 glob 模式（支持 **），返回去重排序后的文件列表。
func Discover(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files match %v", patterns)
	}
	return files, nil
}

// LoadPosts 读取一个 .json / .yaml / .yml 文件，文件内容为帖子数组。
func LoadPosts(path string) ([]Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var posts []Post
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &posts)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &posts)
	default:
		return nil, fmt.Errorf("unsupported input format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return posts, nil
}

// ToFragments 把帖子转换为片段，内容为空白的帖子被丢弃。片段 ID 即其索引位置。
func ToFragments(posts []Post) []store.Fragment {
	fragments := make([]store.Fragment, 0, len(posts))
	for _, p := range posts {
		text := strings.TrimSpace(p.Content)
		if text == "" {
			continue
		}
		postID, _ := strconv.ParseInt(scalar(p.PostNumber), 10, 64)
		fragments = append(fragments, store.Fragment{
			ID:      int64(len(fragments)),
			URL:     p.PostURL,
			Title:   p.TopicTitle,
			Text:    text,
			TopicID: scalar(p.TopicID),
			PostID:  postID,
		})
	}
	return fragments
}

// scalar 把 JSON/YAML 标量统一格式化为字符串。
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
