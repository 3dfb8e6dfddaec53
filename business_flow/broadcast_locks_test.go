package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBroadcastLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalBroadcastLocker()

	t.Run("second acquire on held lock fails", func(t *testing.T) {
		acquired, err := locker.Acquire(ctx, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)

		acquired, err = locker.Acquire(ctx, 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("different campaigns do not contend", func(t *testing.T) {
		acquired, err := locker.Acquire(ctx, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("release frees the lock", func(t *testing.T) {
		require.NoError(t, locker.Release(ctx, 1))

		acquired, err := locker.Acquire(ctx, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("expired lock is reclaimable", func(t *testing.T) {
		acquired, err := locker.Acquire(ctx, 3, 10*time.Millisecond)
		require.NoError(t, err)
		require.True(t, acquired)

		time.Sleep(25 * time.Millisecond)

		acquired, err = locker.Acquire(ctx, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}
