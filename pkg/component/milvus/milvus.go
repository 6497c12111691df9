// Package milvus wraps the Milvus SDK for storing and searching fragment vectors.
// Rows are keyed by the fragment position in the corpus metadata so search hits
// map directly back to fragments.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/virtual-ta/pkg/options/milvus"
)

const (
	fieldPosition = "position"
	fieldVector   = "embedding"
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{client: c, opts: opts}, nil
}

// Collection returns the configured collection name.
func (c *Client) Collection() string {
	return c.opts.Collection
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// EnsureCollection creates the fragment collection with an exact L2 (FLAT) index
// if it does not exist, then loads it. When recreate is set an existing
// collection is dropped first.
func (c *Client) EnsureCollection(ctx context.Context, dim int, recreate bool) error {
	name := c.opts.Collection

	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists && recreate {
		if err := c.DropCollection(ctx); err != nil {
			return err
		}
		exists = false
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("course and forum fragments").
			WithAutoID(false).
			WithField(entity.NewField().
				WithName(fieldPosition).
				WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName(fieldVector).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(dim)))

		if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		task, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, fieldVector, index.NewFlatIndex(entity.L2)))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index creation: %w", err)
		}
	}

	return c.load(ctx)
}

func (c *Client) load(ctx context.Context) error {
	task, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(c.opts.Collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Insert writes vectors keyed by ids and flushes so they are immediately searchable.
func (c *Client) Insert(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return nil
	}

	name := c.opts.Collection
	_, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name,
		column.NewColumnInt64(fieldPosition, ids),
		column.NewColumnFloatVector(fieldVector, len(vectors[0]), vectors),
	))
	if err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}

	task, err := c.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// Hit is a single nearest-neighbour result.
type Hit struct {
	ID       int64
	Distance float32
}

// Search returns up to topK nearest ids by L2 distance, closest first.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		c.opts.Collection,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(fieldVector))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	ids, ok := rs.IDs.(*column.ColumnInt64)
	if !ok {
		return nil, fmt.Errorf("unexpected id column type %T", rs.IDs)
	}

	hits := make([]Hit, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hits = append(hits, Hit{ID: ids.Data()[i], Distance: rs.Scores[i]})
	}
	return hits, nil
}

// DropCollection drops the fragment collection.
func (c *Client) DropCollection(ctx context.Context) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(c.opts.Collection)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Count returns the number of rows in the collection.
func (c *Client) Count(ctx context.Context) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(c.opts.Collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
