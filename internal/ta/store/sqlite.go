package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/virtual-ta/pkg/errors"
)

// fragmentRecord sqlite 中的片段行，Position 即索引位置。
type fragmentRecord struct {
	Position int64  `gorm:"primaryKey;autoIncrement:false"`
	ID       int64  `gorm:"column:fragment_id;index"`
	URL      string `gorm:"column:url"`
	Title    string `gorm:"column:title"`
	Text     string `gorm:"column:text;not null"`
	TopicID  string `gorm:"column:topic_id;index"`
	PostID   int64  `gorm:"column:post_id"`
}

func (fragmentRecord) TableName() string { return "fragments" }

func openSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	return db, nil
}

// ReadSQLite 按位置顺序读出全部片段，位置必须从 0 连续编号。
func ReadSQLite(ctx context.Context, path string) ([]Fragment, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.ErrIndexCorrupt.WithCause(err).WithMessagef("metadata database %s is not readable", path)
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, errors.ErrIndexCorrupt.WithCause(err)
	}
	defer closeDB(db)

	var records []fragmentRecord
	if err := db.WithContext(ctx).Order("position").Find(&records).Error; err != nil {
		return nil, errors.ErrIndexCorrupt.WithCause(err).WithMessagef("failed to read fragments from %s", path)
	}

	out := make([]Fragment, len(records))
	for i, r := range records {
		if r.Position != int64(i) {
			return nil, errors.ErrIndexCorrupt.WithMessagef("fragment positions are not contiguous at %d (found %d)", i, r.Position)
		}
		out[i] = Fragment{ID: r.ID, URL: r.URL, Title: r.Title, Text: r.Text, TopicID: r.TopicID, PostID: r.PostID}
	}
	return out, nil
}

// WriteSQLite 写出片段元数据库，同样先写临时文件再 rename。
func WriteSQLite(ctx context.Context, path string, fragments []Fragment) error {
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

	db, err := openSQLite(tmpPath)
	if err != nil {
		return errors.ErrIndexBuild.WithCause(err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&fragmentRecord{}); err != nil {
			return err
		}
		records := make([]fragmentRecord, len(fragments))
		for i, f := range fragments {
			records[i] = fragmentRecord{
				Position: int64(i),
				ID:       f.ID,
				URL:      f.URL,
				Title:    f.Title,
				Text:     f.Text,
				TopicID:  f.TopicID,
				PostID:   f.PostID,
			}
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 500).Error
	})
	closeDB(db)
	if err != nil {
		return errors.ErrIndexBuild.WithCause(err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.ErrIndexBuild.WithCause(err)
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
