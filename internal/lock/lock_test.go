package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLockAndUnlock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	locker := NewLocker(client, "reconcile:key-1", "holder-a")
	assert.NoError(t, locker.Lock(ctx, time.Minute))
	assert.NoError(t, locker.Unlock(ctx))

	// Released, so a second holder can take it.
	other := NewLocker(client, "reconcile:key-1", "holder-b")
	assert.NoError(t, other.Lock(ctx, time.Minute))
}

func TestLockHeldByAnotherHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := NewLocker(client, "reconcile:key-1", "holder-a")
	assert.NoError(t, first.Lock(ctx, time.Minute))

	second := NewLocker(client, "reconcile:key-1", "holder-b")
	assert.Error(t, second.Lock(ctx, time.Minute))
}

func TestUnlockByNonHolderFails(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "reconcile:key-1", "holder-a")
	assert.NoError(t, holder.Lock(ctx, time.Minute))

	imposter := NewLocker(client, "reconcile:key-1", "holder-b")
	assert.Error(t, imposter.Unlock(ctx))

	// The holder's lock is untouched.
	assert.NoError(t, holder.Unlock(ctx))
}

func TestExtendLock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "reconcile:key-1", "holder-a")
	assert.NoError(t, holder.Lock(ctx, time.Minute))
	assert.NoError(t, holder.ExtendLock(ctx, 2*time.Minute))

	imposter := NewLocker(client, "reconcile:key-1", "holder-b")
	assert.Error(t, imposter.ExtendLock(ctx, time.Minute))
}

func TestWaitLockAcquiresAfterRelease(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := NewLocker(client, "reconcile:key-1", "holder-a")
	assert.NoError(t, first.Lock(ctx, time.Minute))

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = first.Unlock(ctx)
	}()

	second := NewLocker(client, "reconcile:key-1", "holder-b")
	assert.NoError(t, second.WaitLock(ctx, time.Minute, 2*time.Second))
}

func TestForSettlementScopesLockToKey(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := ForSettlement(client, "key-1")
	assert.NoError(t, first.Lock(ctx, SettlementLockTTL))

	// The same settlement contends; a different one does not.
	second := ForSettlement(client, "key-1")
	assert.Error(t, second.Lock(ctx, SettlementLockTTL))

	other := ForSettlement(client, "key-2")
	assert.NoError(t, other.Lock(ctx, SettlementLockTTL))

	// Holder values are unique, so the contender cannot release the lock.
	assert.Error(t, second.Unlock(ctx))
	assert.NoError(t, first.Unlock(ctx))
}

func TestWaitLockTimesOut(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := NewLocker(client, "reconcile:key-1", "holder-a")
	assert.NoError(t, first.Lock(ctx, time.Minute))

	second := NewLocker(client, "reconcile:key-1", "holder-b")
	assert.Error(t, second.WaitLock(ctx, time.Minute, 300*time.Millisecond))
}
