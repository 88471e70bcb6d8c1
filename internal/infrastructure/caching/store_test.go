package caching

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(clock *fakeClock) *Store {
	return NewStore(Options{
		StaleTTL:       5 * time.Minute,
		GCTTL:          10 * time.Minute,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		Clock:          clock.Now,
	}, logging.NewTestLogger())
}

func TestStaleBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	e := Entry{Status: StatusSuccess, Value: "v", StaleAfter: now}

	assert.False(t, e.IsStale(now.Add(-time.Nanosecond)))
	assert.True(t, e.IsStale(now), "a read exactly at the boundary must revalidate")
	assert.True(t, e.IsStale(now.Add(time.Nanosecond)))
}

func TestNonSuccessEntriesAreAlwaysStale(t *testing.T) {
	later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	e := Entry{Status: StatusPending, StaleAfter: later}
	assert.True(t, e.IsStale(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)))
}

func TestConcurrentReadsShareOneFetch(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "payload", nil
	}

	const readers = 8
	var wg sync.WaitGroup
	results := make([]any, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := store.Read(context.Background(), key, fetch)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give every reader time to join the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "payload", v)
	}
}

func TestFreshReadSkipsFetch(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CaseDetail("KDH/2024/100")
	store.Set(key, "cached")

	v, err := store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
		t.Fatal("fresh entry must not refetch")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", v)
}

func TestReadLogsMeasuredDuration(t *testing.T) {
	var buf bytes.Buffer
	clock := newFakeClock()
	store := NewStore(Options{
		StaleTTL:       5 * time.Minute,
		GCTTL:          10 * time.Minute,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		Clock:          clock.Now,
	}, logging.NewTestLoggerWithWriter(&buf))

	key := CaseDetail("KDH/2024/7")
	_, err := store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "v", nil
	})
	require.NoError(t, err)

	type record struct {
		Msg      string        `json:"msg"`
		Hit      bool          `json:"hit"`
		Duration time.Duration `json:"duration"`
	}
	var miss record
	found := false
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec record
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec.Msg == "Cache miss" {
			miss, found = rec, true
		}
	}
	require.True(t, found, "miss read never logged")
	assert.False(t, miss.Hit)
	assert.GreaterOrEqual(t, miss.Duration, 20*time.Millisecond,
		"logged duration must cover the fetch wait")
}

func TestStaleReadServesCachedValueAndRevalidates(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)
	store.Set(key, "old")

	clock.Advance(5 * time.Minute)

	updated := make(chan Entry, 1)
	unsubscribe := store.Subscribe(key, func(e Entry) {
		if e.Value == "new" {
			updated <- e
		}
	})
	defer unsubscribe()

	v, err := store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
		return "new", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "old", v, "stale read serves the cached value immediately")

	select {
	case e := <-updated:
		assert.Equal(t, StatusSuccess, e.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("background revalidation never committed")
	}
}

func TestRetriesExhaustedKeepsLastGoodValue(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)
	store.Set(key, "good")

	clock.Advance(5 * time.Minute)

	settled := make(chan Entry, 1)
	unsubscribe := store.Subscribe(key, func(e Entry) {
		if e.Status == StatusError {
			settled <- e
		}
	})
	defer unsubscribe()

	var calls atomic.Int32
	failure := errors.New("backend down")
	v, err := store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, failure
	})
	require.NoError(t, err)
	assert.Equal(t, "good", v)

	select {
	case e := <-settled:
		assert.Equal(t, "good", e.Value, "failed refetch must not discard data")
		assert.ErrorIs(t, e.Err, failure)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never settled")
	}
	assert.Equal(t, int32(3), calls.Load(), "one initial attempt plus two retries")
}

func TestForegroundFetchFailureReturnsError(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := MotionDetail("M-1")

	failure := errors.New("backend down")
	_, err := store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
		return nil, failure
	})
	assert.ErrorIs(t, err, failure)
}

func TestInvalidateMarksFreshEntriesStale(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	listKey := CasesList(nil)
	detailKey := CaseDetail("KDH/2024/100")
	motionKey := MotionDetail("M-1")
	store.Set(listKey, "list")
	store.Set(detailKey, "detail")
	store.Set(motionKey, "motion")

	store.Invalidate(CasesPrefix())

	now := clock.Now()
	for _, key := range []Key{listKey, detailKey} {
		e := mustGet(t, store, key)
		assert.True(t, e.IsStale(now))
		assert.NotNil(t, e.Value, "invalidation keeps the held value")
	}
	assert.False(t, mustGet(t, store, motionKey).IsStale(now), "other resources untouched")
}

func TestInvalidateIsIdempotentOnStaleEntries(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)
	store.Set(key, "v")

	store.Invalidate(CasesPrefix())
	first, _ := store.Get(key)

	clock.Advance(time.Minute)
	store.Invalidate(CasesPrefix())
	second, _ := store.Get(key)

	assert.Equal(t, first.StaleAfter, second.StaleAfter, "an already-stale entry keeps its boundary")
	assert.Equal(t, "v", second.Value)
}

func TestEvictExpiredRemovesIdleEntries(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	store.Set(CasesList(nil), "v")

	assert.Equal(t, 0, store.EvictExpired())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, store.EvictExpired())

	_, ok := store.Get(CasesList(nil))
	assert.False(t, ok)
}

func TestReadExtendsRetention(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)
	store.Set(key, "v")

	clock.Advance(9 * time.Minute)
	_, err := store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
		return "v2", nil
	})
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	assert.Equal(t, 0, store.EvictExpired(), "a recent read resets the retention window")
}

func TestSubscribePrefixObservesFamilyChanges(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	var mu sync.Mutex
	var seen []string
	unsubscribe := store.SubscribePrefix(CasesPrefix(), func(e Entry) {
		mu.Lock()
		seen = append(seen, e.Key.Canonical())
		mu.Unlock()
	})

	store.Set(CasesList(nil), "v")
	store.Set(MotionDetail("M-1"), "other")
	store.Set(CaseDetail("KDH/2024/100"), "d")

	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()

	unsubscribe()
	store.Set(CasesList(nil), "v2")

	mu.Lock()
	assert.Len(t, seen, 2, "no notifications after unsubscribe")
	mu.Unlock()
}

func TestRemoveNotifiesSubscribers(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)

	var seen []Entry
	store.Subscribe(key, func(e Entry) {
		seen = append(seen, e)
	})

	store.Set(key, "v1")
	store.Remove(key)

	require.Len(t, seen, 2)
	assert.Equal(t, StatusIdle, seen[1].Status)
	assert.False(t, seen[1].HasValue())
	assert.Equal(t, key.Canonical(), seen[1].Key.Canonical())

	// Removing an absent key changes nothing and stays silent.
	store.Remove(key)
	assert.Len(t, seen, 2)
}

func TestRemoveCancelsInFlightFetch(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	go func() {
		_, _ = store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		})
	}()

	<-started
	store.Remove(key)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("removing a key must cancel its fetch")
	}

	_, ok := store.Get(key)
	assert.False(t, ok)
}

func TestRefetchSupersedesInFlightFetch(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	key := CasesList(nil)

	firstStarted := make(chan struct{})
	firstRelease := make(chan struct{})
	go func() {
		_, _ = store.Read(context.Background(), key, func(ctx context.Context) (any, error) {
			close(firstStarted)
			<-firstRelease
			return "slow", nil
		})
	}()
	<-firstStarted

	v, err := store.Refetch(context.Background(), key, func(ctx context.Context) (any, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	close(firstRelease)
	time.Sleep(50 * time.Millisecond)

	e := mustGet(t, store, key)
	assert.Equal(t, "fresh", e.Value, "the superseded fetch must not overwrite the newer result")
}

func mustGet(t *testing.T, store *Store, key Key) Entry {
	t.Helper()
	e, ok := store.Get(key)
	require.True(t, ok)
	return e
}
