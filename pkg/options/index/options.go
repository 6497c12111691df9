// Package index provides options for the persisted fragment index.
package index

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/virtual-ta/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 元数据后端
const (
	MetadataBolt   = "bolt"
	MetadataSQLite = "sqlite"
)

// 向量后端
const (
	VectorFlat   = "flat"
	VectorMilvus = "milvus"
)

// Options 索引文件与后端配置。
type Options struct {
	// Path bbolt 索引文件路径（向量 + 片段元数据）
	Path string `json:"path" mapstructure:"path"`
	// MetadataBackend 片段元数据来源：bolt 或 sqlite
	MetadataBackend string `json:"metadata-backend" mapstructure:"metadata-backend"`
	// SQLitePath sqlite 元数据库路径
	SQLitePath string `json:"sqlite-path" mapstructure:"sqlite-path"`
	// VectorBackend 向量检索后端：flat（内存精确 L2）或 milvus
	VectorBackend string `json:"vector-backend" mapstructure:"vector-backend"`
	// Watch 监听索引文件变化并记录
	Watch bool `json:"watch" mapstructure:"watch"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Path:            "data/index.db",
		MetadataBackend: MetadataBolt,
		SQLitePath:      "data/fragments.sqlite",
		VectorBackend:   VectorFlat,
		Watch:           false,
	}
}

// AddFlags adds flags for index options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "index."
	fs.StringVar(&o.Path, p+"path", o.Path, "Path of the bbolt index file.")
	fs.StringVar(&o.MetadataBackend, p+"metadata-backend", o.MetadataBackend, "Fragment metadata backend (bolt, sqlite).")
	fs.StringVar(&o.SQLitePath, p+"sqlite-path", o.SQLitePath, "Path of the sqlite metadata database.")
	fs.StringVar(&o.VectorBackend, p+"vector-backend", o.VectorBackend, "Vector search backend (flat, milvus).")
	fs.BoolVar(&o.Watch, p+"watch", o.Watch, "Log and count changes of the index files.")
}

// Validate validates the index options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("index.path is required"))
	}
	switch o.MetadataBackend {
	case MetadataBolt:
	case MetadataSQLite:
		if o.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("index.sqlite-path is required for the sqlite metadata backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("index.metadata-backend must be bolt or sqlite, got %q", o.MetadataBackend))
	}
	switch o.VectorBackend {
	case VectorFlat, VectorMilvus:
	default:
		errs = append(errs, fmt.Errorf("index.vector-backend must be flat or milvus, got %q", o.VectorBackend))
	}
	return errs
}

// Complete completes the index options with defaults.
func (o *Options) Complete() error {
	if o.MetadataBackend == "" {
		o.MetadataBackend = MetadataBolt
	}
	if o.VectorBackend == "" {
		o.VectorBackend = VectorFlat
	}
	return nil
}
