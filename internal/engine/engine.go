// Package engine implements the differential storage and associative memory
// engine: ingestion, recall, expansion and time/relevance based retention over
// an in-process store and association index.
//
// All mutation of the store and index happens under a single writer lock.
// Collaborator calls (token counting, compression, scoring) run outside the
// lock, so a slow collaborator never blocks readers. Collaborator calls carry
// the caller's context but the engine itself imposes no timeout on them.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/oklog/ulid/v2"

	"github.com/rcliao/dsam/internal/config"
	"github.com/rcliao/dsam/internal/model"
	"github.com/rcliao/dsam/internal/notify"
	"github.com/rcliao/dsam/internal/store"
)

// IDPrefix is prepended to every memory ID.
const IDPrefix = "dsam_"

// Engine owns the memory store, the association index and the retention scheduler.
type Engine struct {
	cfg        config.Config
	tokens     TokenCounter
	compressor Compressor
	scorer     RelevanceScorer
	notifier   notify.Publisher
	persister  Persister
	now        func() time.Time
	interval   time.Duration

	mu     sync.RWMutex
	store  *store.MemoryStore
	index  *store.AssociationIndex
	closed bool

	cache *ristretto.Cache

	idMu    sync.Mutex
	entropy io.Reader

	schedMu  sync.Mutex
	stopCh   chan struct{}
	stopping bool
	wg       sync.WaitGroup
}

// Option customises an Engine.
type Option func(*Engine)

// WithPersister sets the snapshot backend used by Restore, Flush and Close.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithNotifier sets the notification channel.
func WithNotifier(p notify.Publisher) Option {
	return func(e *Engine) { e.notifier = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetentionInterval overrides the configured cleanup period.
func WithRetentionInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// New creates an engine. The collaborators are required.
func New(cfg *config.Config, tokens TokenCounter, compressor Compressor, scorer RelevanceScorer, opts ...Option) (*Engine, error) {
	if tokens == nil || compressor == nil || scorer == nil {
		return nil, fmt.Errorf("token counter, compressor and scorer are required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := *cfg
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     int64(c.ExpandCacheMB) << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create expand cache: %w", err)
	}

	e := &Engine{
		cfg:        c,
		tokens:     tokens,
		compressor: compressor,
		scorer:     scorer,
		notifier:   notify.Discard{},
		now:        time.Now,
		interval:   c.CleanupInterval(),
		store:      store.NewMemoryStore(),
		index:      store.NewAssociationIndex(),
		cache:      cache,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the normalised configuration in use.
func (e *Engine) Config() config.Config {
	return e.cfg
}

func (e *Engine) newID(at time.Time) string {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return IDPrefix + ulid.MustNew(ulid.Timestamp(at), e.entropy).String()
}

func (e *Engine) publish(name string, payload map[string]any) {
	e.notifier.Publish(notify.Event{Name: name, Payload: payload, At: e.now().UTC()})
}

// Restore loads the persisted snapshot into the store and rebuilds the index.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.persister == nil {
		return 0, nil
	}
	memories, err := e.persister.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	for _, m := range memories {
		sortAssociations(m.Associations)
		if len(m.Associations) > e.cfg.MaxAssociations {
			m.Associations = m.Associations[:e.cfg.MaxAssociations]
		}
		if old, ok := e.store.Get(m.ID); ok {
			e.index.Remove(old.ID)
		}
		e.store.Put(m)
		e.index.Add(m)
	}
	return len(memories), nil
}

// Flush writes the current store to the persister.
func (e *Engine) Flush(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	e.mu.RLock()
	snapshot := e.store.All()
	e.mu.RUnlock()

	if err := e.persister.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Close stops the retention scheduler, flushes and clears the engine. If the
// flush fails the in-memory state is kept and Close may be retried; the
// scheduler stays stopped either way.
func (e *Engine) Close() error {
	e.schedMu.Lock()
	e.stopping = true
	e.schedMu.Unlock()
	e.StopRetention()

	if e.isClosed() {
		return nil
	}
	if err := e.Flush(context.Background()); err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.store.Clear()
	e.index.Clear()
	e.mu.Unlock()

	e.cache.Close()
	return nil
}

// Get returns a copy of the memory with the given ID.
func (e *Engine) Get(id string) (model.Memory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.store.Get(id)
	if !ok {
		return model.Memory{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return m, nil
}

// Snapshot returns copies of every stored memory, newest first.
func (e *Engine) Snapshot() []model.Memory {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.All()
}

// Stats summarises the in-memory state.
type Stats struct {
	Memories    int                      `json:"memories"`
	IndexKeys   int                      `json:"index_keys"`
	ByType      map[model.MemoryType]int `json:"by_type"`
	Tokens      CompressionSavings       `json:"tokens"`
	OldestEntry *time.Time               `json:"oldest_entry,omitempty"`
}

// Stats returns counters over the current store.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	all := e.store.All()
	st := Stats{
		Memories:  len(all),
		IndexKeys: e.index.Len(),
		ByType:    map[model.MemoryType]int{},
		Tokens:    savings(all),
	}
	for _, m := range all {
		st.ByType[m.Type]++
	}
	if n := len(all); n > 0 {
		oldest := all[n-1].Timestamp
		st.OldestEntry = &oldest
	}
	return st
}

// Lookup returns the IDs of memories associated with target.
func (e *Engine) Lookup(target string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.Lookup(target)
}

func sortAssociations(as []model.Association) {
	sort.SliceStable(as, func(i, j int) bool {
		return as[i].Strength > as[j].Strength
	})
}

func logf(format string, args ...any) {
	log.Printf("[DSAM] "+format, args...)
}
