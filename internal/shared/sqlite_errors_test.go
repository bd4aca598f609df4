package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
		unique   bool
	}{
		{"nil", nil, false, false},
		{"busy", errors.New("sqlite: SQLITE_BUSY (5)"), true, false},
		{"locked", errors.New("database is locked"), true, false},
		{"unique", errors.New("constraint failed: UNIQUE constraint failed: transactions.tx_hash (2067)"), false, true},
		{"other", errors.New("no such table: x"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, IsSQLiteConflictError(tt.err))
			assert.Equal(t, tt.unique, IsSQLiteUniqueError(tt.err))
		})
	}
}

func TestRetryOnConflict(t *testing.T) {
	t.Run("retries busy then succeeds", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(context.Background(), 3, time.Millisecond, "test", func() error {
			calls++
			if calls < 3 {
				return errors.New("SQLITE_BUSY")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := RetryOnConflict(context.Background(), 3, time.Millisecond, "test", func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(context.Background(), 2, time.Millisecond, "test", func() error {
			calls++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})
}
