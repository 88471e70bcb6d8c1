// Package mutation executes write operations with optimistic cache updates
// and snapshot-based rollback.
package mutation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/security"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
)

// Operation declares everything the coordinator needs to run one mutation.
type Operation struct {
	// Name keys into the reconciliation tables and the logs.
	Name string

	// Args, when set, are validated before any network call.
	Args any

	// AffectedKeys is the set the optimistic patch touches. Snapshots and
	// rollback cover exactly these keys.
	AffectedKeys []caching.Key

	// InvalidateOnSettle is marked stale once the outcome is known,
	// success or failure, so a refetch reconciles against true server
	// state.
	InvalidateOnSettle []caching.Prefix

	// Patch applies the optimistic update. It runs synchronously before
	// the network call is dispatched.
	Patch func(store *caching.Store)

	// Call performs the network operation.
	Call func(ctx context.Context) (any, error)

	// OnSuccess applies server-confirmed replacements, e.g. swapping a
	// temporary id for the server-issued one across all entries.
	OnSuccess func(store *caching.Store, result any)
}

// Coordinator serializes overlapping mutations per affected key: two
// mutations that declare a common key never interleave between snapshot and
// settle, so rollback can restore snapshots verbatim.
type Coordinator struct {
	store    *caching.Store
	validate *validator.Validate
	logger   *logging.ChanneledLogger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

func NewCoordinator(store *caching.Store, logger *logging.ChanneledLogger) *Coordinator {
	return &Coordinator{
		store:    store,
		validate: validator.New(),
		logger:   logger,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// Mutate runs one operation: snapshot, optimistic patch, network call,
// settle. On failure every affected key is restored to its pre-mutation
// snapshot and the error is returned to the caller; the settle-time
// invalidation happens regardless of outcome.
func (c *Coordinator) Mutate(ctx context.Context, op Operation) (any, error) {
	if op.Call == nil {
		return nil, errors.New("operation declares no network call")
	}
	if op.Args != nil {
		if err := c.validate.Struct(op.Args); err != nil {
			return nil, &transport.ValidationError{Err: err}
		}
	}

	mutationID := security.GenerateULID()
	start := time.Now()
	logger := c.logger.Sync().With("mutation", op.Name, "mutationId", mutationID)

	unlock := c.lockKeys(op.AffectedKeys)
	defer unlock()

	snapshot := c.store.Snapshot(op.AffectedKeys)

	if op.Patch != nil {
		op.Patch(c.store)
		logger.Debug("Optimistic patch applied", "keys", len(op.AffectedKeys))
	}

	result, err := op.Call(ctx)
	if err != nil {
		c.store.RestoreSnapshot(snapshot)
		c.settle(op)
		logger.Warn("Mutation failed, rolled back", "error", err.Error(), "duration", time.Since(start))
		return nil, err
	}

	if op.OnSuccess != nil {
		op.OnSuccess(c.store, result)
	}
	c.settle(op)

	logger.Info("Mutation settled", "duration", time.Since(start))
	return result, nil
}

func (c *Coordinator) settle(op Operation) {
	for _, prefix := range op.InvalidateOnSettle {
		c.store.Invalidate(prefix)
	}
}

// lockKeys acquires the per-key mutexes in canonical order, which keeps
// overlapping mutations deadlock-free. The returned function releases them
// in reverse order.
func (c *Coordinator) lockKeys(keys []caching.Key) func() {
	canons := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		canon := key.Canonical()
		if !seen[canon] {
			seen[canon] = true
			canons = append(canons, canon)
		}
	}
	sort.Strings(canons)

	locks := make([]*sync.Mutex, 0, len(canons))
	for _, canon := range canons {
		c.mu.Lock()
		lock, ok := c.keyLocks[canon]
		if !ok {
			lock = &sync.Mutex{}
			c.keyLocks[canon] = lock
		}
		c.mu.Unlock()
		lock.Lock()
		locks = append(locks, lock)
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}
