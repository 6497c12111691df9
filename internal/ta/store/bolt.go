package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/utils/json"
)

var (
	bucketVectors   = []byte("vectors")
	bucketFragments = []byte("fragments")
	bucketMeta      = []byte("meta")
	keyManifest     = []byte("manifest")
)

// Artifact 从索引文件读出的完整内容。
type Artifact struct {
	Manifest  Manifest
	Vectors   [][]float32
	Fragments []Fragment
}

// ReadBolt 以只读方式打开索引文件并全部读入内存。
// 文件缺失、结构损坏或向量与片段数量不一致都会返回 ErrIndexCorrupt。
func ReadBolt(path string) (*Artifact, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.ErrIndexCorrupt.WithCause(err).WithMessagef("index file %s is not readable", path)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, errors.ErrIndexCorrupt.WithCause(err).WithMessagef("failed to open index file %s", path)
	}
	defer func() { _ = db.Close() }()

	art := &Artifact{}
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		vectors := tx.Bucket(bucketVectors)
		fragments := tx.Bucket(bucketFragments)
		if meta == nil || vectors == nil || fragments == nil {
			return fmt.Errorf("missing bucket")
		}

		raw := meta.Get(keyManifest)
		if raw == nil {
			return fmt.Errorf("missing manifest")
		}
		if err := json.Unmarshal(raw, &art.Manifest); err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		if art.Manifest.Version != FormatVersion {
			return fmt.Errorf("unsupported index format version %d", art.Manifest.Version)
		}

		if art.Manifest.Count < 0 || art.Manifest.Dimension <= 0 {
			return fmt.Errorf("invalid manifest: count %d, dimension %d", art.Manifest.Count, art.Manifest.Dimension)
		}

		n := art.Manifest.Count
		art.Vectors = make([][]float32, n)
		art.Fragments = make([]Fragment, n)

		if err := vectors.ForEach(func(k, v []byte) error {
			pos, err := positionOf(k, n)
			if err != nil {
				return err
			}
			vec, err := decodeVector(v, art.Manifest.Dimension)
			if err != nil {
				return fmt.Errorf("vector %d: %w", pos, err)
			}
			art.Vectors[pos] = vec
			return nil
		}); err != nil {
			return err
		}

		if err := fragments.ForEach(func(k, v []byte) error {
			pos, err := positionOf(k, n)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(v, &art.Fragments[pos]); err != nil {
				return fmt.Errorf("fragment %d: %w", pos, err)
			}
			return nil
		}); err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			if art.Vectors[i] == nil {
				return fmt.Errorf("vector %d missing", i)
			}
			if art.Fragments[i].Text == "" {
				return fmt.Errorf("fragment %d missing or empty", i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.ErrIndexCorrupt.WithCause(err).WithMessagef("index file %s is corrupt", path)
	}
	return art, nil
}

// WriteBolt 将向量与片段作为一对写入索引文件。
// 先写同目录临时文件并 fsync，再原子 rename，读者不会看到只写了一半的索引。
func WriteBolt(path string, manifest Manifest, fragments []Fragment, vectors [][]float32) error {
	if len(fragments) != len(vectors) {
		return errors.ErrIndexBuild.WithMessagef("%d fragments but %d vectors", len(fragments), len(vectors))
	}
	manifest.Version = FormatVersion
	manifest.Count = len(vectors)
	if manifest.BuiltAt == 0 {
		manifest.BuiltAt = time.Now().Unix()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.ErrIndexBuild.WithCause(err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.ErrIndexBuild.WithCause(err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	db, err := bolt.Open(tmpPath, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return errors.ErrIndexBuild.WithCause(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		vb, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		fb, err := tx.CreateBucket(bucketFragments)
		if err != nil {
			return err
		}
		mb, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		vb.FillPercent = 1.0
		fb.FillPercent = 1.0

		for i := range vectors {
			if len(vectors[i]) != manifest.Dimension {
				return errors.ErrIndexDimension.WithMessagef("vector %d has dimension %d, want %d", i, len(vectors[i]), manifest.Dimension)
			}
			key := positionKey(i)
			if err := vb.Put(key, encodeVector(vectors[i])); err != nil {
				return err
			}
			data, err := json.Marshal(fragments[i])
			if err != nil {
				return err
			}
			if err := fb.Put(key, data); err != nil {
				return err
			}
		}

		data, err := json.Marshal(manifest)
		if err != nil {
			return err
		}
		return mb.Put(keyManifest, data)
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if errors.IsCode(err, errors.ErrIndexDimension.Code) {
			return err
		}
		return errors.ErrIndexBuild.WithCause(err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.ErrIndexBuild.WithCause(err)
	}
	return nil
}

func positionKey(pos int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(pos))
	return k
}

func positionOf(k []byte, n int) (int, error) {
	if len(k) != 8 {
		return 0, fmt.Errorf("malformed key %x", k)
	}
	pos := binary.BigEndian.Uint64(k)
	if pos >= uint64(n) {
		return 0, fmt.Errorf("position %d beyond count %d", pos, n)
	}
	return int(pos), nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("got %d bytes, want %d", len(b), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
