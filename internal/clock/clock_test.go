package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockResyncUpdatesOffset(t *testing.T) {
	serverAhead := 5 * time.Second
	c := New(func(ctx context.Context) (time.Time, error) {
		return time.Now().Add(serverAhead), nil
	})

	require.True(t, c.NeedsResync())
	require.NoError(t, c.Resync(context.Background()))

	offset := c.Offset()
	require.InDelta(t, serverAhead.Milliseconds(), offset.Milliseconds(), 50)
	require.False(t, c.NeedsResync())
}

func TestClockResyncFailurePreservesOffset(t *testing.T) {
	calls := 0
	c := New(func(ctx context.Context) (time.Time, error) {
		calls++
		if calls == 1 {
			return time.Now().Add(2 * time.Second), nil
		}
		return time.Time{}, context.DeadlineExceeded
	})

	require.NoError(t, c.Resync(context.Background()))
	before := c.Offset()

	err := c.Resync(context.Background())
	require.Error(t, err)
	require.Equal(t, before, c.Offset())
}

func TestWarningsRateLimit(t *testing.T) {
	var w Warnings
	require.True(t, w.ShouldLog(time.Minute))
	require.False(t, w.ShouldLog(time.Minute))
	w.Reset()
	require.True(t, w.ShouldLog(time.Minute))
}
