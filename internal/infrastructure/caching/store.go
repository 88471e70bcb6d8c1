package caching

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/pkg/config"
)

// FetchFunc loads one key's value from the backend collaborator.
type FetchFunc func(ctx context.Context) (any, error)

// Listener observes committed entry changes for a key family.
type Listener func(Entry)

// flight is one in-flight fetch. Concurrent readers of the same key share a
// single flight; a flight is cancelled when its key is removed or a newer
// fetch supersedes it.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	value  any
	err    error
}

type subscription struct {
	id    int
	match func(Key) bool
	fn    Listener
}

// Options tune the store. Zero values fall back to the configured defaults.
type Options struct {
	StaleTTL       time.Duration
	GCTTL          time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Clock          func() time.Time
}

// Store is the single shared mutable resource of the sync engine. All reads
// and writes funnel through it; no caller mutates cached values in place.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	inflight  map[string]*flight
	subs      []*subscription
	nextSubID int

	staleTTL       time.Duration
	gcTTL          time.Duration
	maxAttempts    int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	now    func() time.Time
	logger *logging.ChanneledLogger
}

func NewStore(opts Options, logger *logging.ChanneledLogger) *Store {
	if opts.StaleTTL == 0 {
		opts.StaleTTL = config.StaleTTL
	}
	if opts.GCTTL == 0 {
		opts.GCTTL = config.GCTTL
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = config.FetchMaxAttempts
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = config.FetchRetryBaseDelay
	}
	if opts.RetryMaxDelay == 0 {
		opts.RetryMaxDelay = config.FetchRetryMaxDelay
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Store{
		entries:        make(map[string]*Entry),
		inflight:       make(map[string]*flight),
		staleTTL:       opts.StaleTTL,
		gcTTL:          opts.GCTTL,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
		now:            opts.Clock,
		logger:         logger,
	}
}

// Get is a pure lookup with no side effects.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.Canonical()]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Set replaces or creates the entry and notifies subscribers synchronously.
func (s *Store) Set(key Key, value any) {
	now := s.now()

	s.mu.Lock()
	e := &Entry{
		Key:        key,
		Value:      value,
		Status:     StatusSuccess,
		FetchedAt:  now,
		StaleAfter: now.Add(s.staleTTL),
		GCAfter:    now.Add(s.gcTTL),
	}
	s.entries[key.Canonical()] = e
	entry := *e
	listeners := s.matchingListenersLocked(key)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
}

// Restore writes an entry back verbatim, metadata included. Used for
// mutation rollback so the post-rollback state equals the snapshot exactly.
func (s *Store) Restore(entry Entry) {
	s.mu.Lock()
	e := entry
	s.entries[entry.Key.Canonical()] = &e
	listeners := s.matchingListenersLocked(entry.Key)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
}

// Remove deletes an entry and cancels any fetch in flight for it.
// Subscribers observe the removal as a valueless idle entry; removing an
// absent key stays silent.
func (s *Store) Remove(key Key) {
	canon := key.Canonical()

	s.mu.Lock()
	if fl, ok := s.inflight[canon]; ok {
		fl.cancel()
		delete(s.inflight, canon)
	}
	_, existed := s.entries[canon]
	delete(s.entries, canon)
	var listeners []Listener
	if existed {
		listeners = s.matchingListenersLocked(key)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(Entry{Key: key, Status: StatusIdle})
	}
}

// Invalidate marks every entry under the prefix stale without clearing the
// currently held value; the next read serves it while revalidating.
// Invalidating an already-stale entry changes nothing.
func (s *Store) Invalidate(p Prefix) {
	now := s.now()
	var changed []Entry
	var listeners [][]Listener

	s.mu.Lock()
	for _, e := range s.entries {
		if !p.Matches(e.Key) {
			continue
		}
		if e.IsStale(now) {
			continue
		}
		e.StaleAfter = now
		changed = append(changed, *e)
		listeners = append(listeners, s.matchingListenersLocked(e.Key))
	}
	s.mu.Unlock()

	if len(changed) > 0 {
		s.logger.Cache().Debug("Invalidated key family", "prefix", p.String(), "entries", len(changed))
	}
	for i, entry := range changed {
		for _, fn := range listeners[i] {
			fn(entry)
		}
	}
}

// Read returns the cached value for key, fetching when needed.
//
// Fresh entries return immediately. Stale entries with a value return that
// value and schedule a background refetch (stale-while-revalidate). Missing
// or valueless entries fetch in the foreground. Concurrent reads of one key
// share a single network call.
func (s *Store) Read(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	canon := key.Canonical()
	now := s.now()
	start := time.Now()

	s.mu.Lock()
	e, ok := s.entries[canon]
	if ok {
		e.GCAfter = now.Add(s.gcTTL) // last-access retention
		if !e.IsStale(now) {
			value := e.Value
			s.mu.Unlock()
			s.logger.LogCacheOperation("read", canon, true, time.Since(start))
			return value, nil
		}
		if e.HasValue() {
			s.startFetchLocked(key, fetch)
			value := e.Value
			s.mu.Unlock()
			s.logger.LogCacheOperation("read", canon, true, time.Since(start))
			return value, nil
		}
	}

	if !ok {
		s.entries[canon] = &Entry{
			Key:     key,
			Status:  StatusPending,
			GCAfter: now.Add(s.gcTTL),
		}
	} else {
		e.Status = StatusPending
	}
	fl := s.startFetchLocked(key, fetch)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-fl.done:
		s.logger.LogCacheOperation("read", canon, false, time.Since(start))
		return fl.value, fl.err
	}
}

// Refetch forces a fresh load for key, superseding any fetch already in
// flight (last-writer-wins), and waits for the result.
func (s *Store) Refetch(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	canon := key.Canonical()

	s.mu.Lock()
	if fl, ok := s.inflight[canon]; ok {
		fl.cancel()
		delete(s.inflight, canon)
	}
	fl := s.startFetchLocked(key, fetch)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-fl.done:
		return fl.value, fl.err
	}
}

// startFetchLocked dedupes into an existing flight or launches a new one.
// Callers must hold s.mu.
func (s *Store) startFetchLocked(key Key, fetch FetchFunc) *flight {
	canon := key.Canonical()
	if fl, ok := s.inflight[canon]; ok {
		return fl
	}

	fctx, cancel := context.WithCancel(context.Background())
	fl := &flight{
		ctx:    fctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.inflight[canon] = fl

	go s.runFetch(key, fl, fetch)
	return fl
}

func (s *Store) runFetch(key Key, fl *flight, fetch FetchFunc) {
	canon := key.Canonical()

	var value any
	operation := func() error {
		v, err := fetch(fl.ctx)
		if err != nil {
			if fl.ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		value = v
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBaseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = s.retryMaxDelay
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), fl.ctx))

	now := s.now()
	var committed *Entry
	var listeners []Listener

	s.mu.Lock()
	current := s.inflight[canon] == fl
	if current {
		delete(s.inflight, canon)
	}
	superseded := !current || fl.ctx.Err() != nil

	if !superseded {
		e, ok := s.entries[canon]
		if err == nil {
			if !ok {
				e = &Entry{Key: key}
				s.entries[canon] = e
			}
			e.Value = value
			e.Status = StatusSuccess
			e.Err = nil
			e.FetchedAt = now
			e.StaleAfter = now.Add(s.staleTTL)
			e.GCAfter = now.Add(s.gcTTL)
			snapshot := *e
			committed = &snapshot
		} else if ok {
			// Retries exhausted: keep the last good value, record the error.
			e.Status = StatusError
			e.Err = err
			snapshot := *e
			committed = &snapshot
		}
		if committed != nil {
			listeners = s.matchingListenersLocked(key)
		}
	}
	s.mu.Unlock()

	if err != nil && !superseded {
		s.logger.Cache().Warn("Fetch failed after retries", "key", canon, "error", err.Error())
	}

	fl.value = value
	fl.err = err
	close(fl.done)

	if committed != nil {
		for _, fn := range listeners {
			fn(*committed)
		}
	}
}

// Subscribe registers a listener for exactly one key. The returned function
// unsubscribes.
func (s *Store) Subscribe(key Key, fn Listener) func() {
	canon := key.Canonical()
	return s.subscribe(func(k Key) bool { return k.Canonical() == canon }, fn)
}

// SubscribePrefix registers a listener for a whole key family.
func (s *Store) SubscribePrefix(p Prefix, fn Listener) func() {
	return s.subscribe(p.Matches, fn)
}

func (s *Store) subscribe(match func(Key) bool, fn Listener) func() {
	s.mu.Lock()
	s.nextSubID++
	sub := &subscription{id: s.nextSubID, match: match, fn: fn}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, candidate := range s.subs {
			if candidate.id == sub.id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) matchingListenersLocked(key Key) []Listener {
	var out []Listener
	for _, sub := range s.subs {
		if sub.match(key) {
			out = append(out, sub.fn)
		}
	}
	return out
}

// EvictExpired removes entries idle past their retention window. Entries
// with a fetch in flight are left alone.
func (s *Store) EvictExpired() int {
	now := s.now()
	evicted := 0

	s.mu.Lock()
	for canon, e := range s.entries {
		if _, busy := s.inflight[canon]; busy {
			continue
		}
		if e.Expired(now) {
			delete(s.entries, canon)
			evicted++
		}
	}
	s.mu.Unlock()

	return evicted
}

// StoreStats summarizes cache state for the diagnostics surface.
type StoreStats struct {
	Entries     int            `json:"entries"`
	Stale       int            `json:"stale"`
	InFlight    int            `json:"inFlight"`
	Subscribers int            `json:"subscribers"`
	ByResource  map[string]int `json:"byResource"`
}

func (s *Store) Stats() StoreStats {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := StoreStats{
		Entries:     len(s.entries),
		InFlight:    len(s.inflight),
		Subscribers: len(s.subs),
		ByResource:  make(map[string]int),
	}
	for _, e := range s.entries {
		stats.ByResource[e.Key.Resource]++
		if e.IsStale(now) {
			stats.Stale++
		}
	}
	return stats
}
