package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
)

func TestDefaults(t *testing.T) {
	o := NewIndexerOptions()
	require.NoError(t, o.Complete())
	require.NoError(t, o.Validate())

	cfg := o.Config()
	assert.Equal(t, []string{"tds_discourse_posts.json"}, cfg.Inputs)
	assert.Equal(t, o.IndexOptions.Path, cfg.IndexPath)
	assert.Empty(t, cfg.SQLitePath)
	assert.Equal(t, "all-minilm", cfg.Model)
}

func TestSQLiteMetadataBackendWritesSQLite(t *testing.T) {
	o := NewIndexerOptions()
	o.IndexOptions.MetadataBackend = indexopts.MetadataSQLite

	assert.Equal(t, o.IndexOptions.SQLitePath, o.Config().SQLitePath)
}

func TestValidate(t *testing.T) {
	o := NewIndexerOptions()
	o.Inputs = nil
	o.BatchSize = 0

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input pattern")
	assert.Contains(t, err.Error(), "batch-size")
}

func TestFlags(t *testing.T) {
	o := NewIndexerOptions()
	fss := o.Flags()

	require.NoError(t, fss.FlagSet("input").Parse([]string{"--inputs=a/**/*.json,b.yaml", "--batch-size=8"}))
	assert.Equal(t, []string{"a/**/*.json", "b.yaml"}, o.Inputs)
	assert.Equal(t, 8, o.BatchSize)
	assert.Equal(t, []string{"log", "embedding", "index", "milvus", "input"}, fss.Order)
}
