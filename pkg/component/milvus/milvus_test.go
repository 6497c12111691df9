package milvus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNilOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestInsertLengthMismatch(t *testing.T) {
	c := &Client{}
	err := c.Insert(context.Background(), []int64{1, 2}, [][]float32{{1}})
	assert.Error(t, err)

	assert.NoError(t, c.Insert(context.Background(), nil, nil))
}
