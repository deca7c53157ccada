package verification

import (
	"context"
	"testing"
	"time"

	"github.com/thelesson/lessonbill/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk)

	t.Run("take consumes a matching code", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "01012345678", "482913", 3*time.Minute))

		assert.NoError(t, store.Take(ctx, "01012345678", "482913"))
		// Consumed; a second take fails.
		assert.ErrorIs(t, store.Take(ctx, "01012345678", "482913"), ErrCodeMismatch)
	})

	t.Run("wrong code leaves the entry in place", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "01012345678", "771020", 3*time.Minute))

		assert.ErrorIs(t, store.Take(ctx, "01012345678", "000000"), ErrCodeMismatch)
		assert.NoError(t, store.Take(ctx, "01012345678", "771020"))
	})

	t.Run("expired codes never match", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "01012345678", "115599", 3*time.Minute))

		clk.Advance(5 * time.Minute)
		assert.ErrorIs(t, store.Take(ctx, "01012345678", "115599"), ErrCodeMismatch)
	})

	t.Run("unknown phone fails", func(t *testing.T) {
		assert.ErrorIs(t, store.Take(ctx, "01000000000", "123456"), ErrCodeMismatch)
	})
}
