package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("finknow_chunks"))
	assert.ErrorIs(t, ValidateCollectionName("Bad-Name"), domain.ErrInvalidCollection)
	assert.ErrorIs(t, ValidateCollectionName("vector_collections"), domain.ErrInvalidCollection)
	assert.ErrorIs(t, ValidateCollectionName(""), domain.ErrInvalidCollection)
}

func TestNewChunkStore_Validation(t *testing.T) {
	_, err := NewChunkStore(nil, "Bad-Name", 3, 10)
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))

	_, err = NewChunkStore(nil, "chunks", 0, 10)
	assert.True(t, domain.IsConfiguration(err))

	store, err := NewChunkStore(nil, "chunks", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, `"chunks"`, store.table)
	assert.Equal(t, DefaultScrollPageSize, store.pageSize)
}

func TestExtraPayloadEncoding(t *testing.T) {
	data, err := encodeExtra(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = encodeExtra(map[string]string{"page": "3"})
	require.NoError(t, err)

	extra, err := decodeExtra(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"page": "3"}, extra)

	extra, err = decodeExtra(nil)
	require.NoError(t, err)
	assert.Nil(t, extra)
}

func TestRetryableTxError(t *testing.T) {
	assert.True(t, retryableTxError(&pgconn.PgError{Code: "40001"}))
	assert.True(t, retryableTxError(fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, retryableTxError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, retryableTxError(errors.New("connection refused")))
}
