package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_PublishResolveWithdraw(t *testing.T) {
	ctx := context.Background()
	dir := NewStatic(nil)

	_, err := dir.Resolve(ctx, "AuctionService")
	require.ErrorIs(t, err, ErrNotBound)

	require.NoError(t, dir.Publish(ctx, "AuctionService", "http://127.0.0.1:5099"))
	address, err := dir.Resolve(ctx, "AuctionService")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5099", address)

	require.NoError(t, dir.Withdraw(ctx, "AuctionService"))
	_, err = dir.Resolve(ctx, "AuctionService")
	require.ErrorIs(t, err, ErrNotBound)
}

func TestResolveWithRetry_WaitsForBinding(t *testing.T) {
	dir := NewStatic(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(30 * time.Millisecond)
		_ = dir.Publish(context.Background(), "AuctionService", "http://127.0.0.1:5100")
	}()

	address, err := ResolveWithRetry(context.Background(), dir, "AuctionService", 5, 20*time.Millisecond)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5100", address)
}

func TestResolveWithRetry_GivesUp(t *testing.T) {
	dir := NewStatic(nil)

	start := time.Now()
	_, err := ResolveWithRetry(context.Background(), dir, "AuctionService", 3, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrNotBound)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestResolveWithRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ResolveWithRetry(ctx, NewStatic(nil), "AuctionService", 5, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
