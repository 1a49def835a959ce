// Package cache is the process-wide keyed store behind every read view.
//
// The store is an explicit value owned by the session that created it; there
// is no package-level instance. Entries are written only by a completed fetch
// and changed only by invalidation. Keys are hierarchical, so one Invalidate
// call with a short prefix stale-marks every parameterized view beneath it.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key is a hierarchical cache key, e.g. {"debts", "customer", "c1"}.
type Key []string

// String joins the key segments with "/".
func (k Key) String() string { return strings.Join(k, "/") }

// HasPrefix reports whether prefix matches k segment by segment.
// The empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Append returns a new key with parts added. k is never modified.
func (k Key) Append(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// Loader fetches the value for one key.
type Loader func(ctx context.Context) (any, error)

// Options tune staleness and collection.
type Options struct {
	// StaleTime is how long a fetched value is served without refetching.
	StaleTime time.Duration
	// ActiveWindow decides which entries count as active views: those read
	// within this window are refetched in the background on invalidation.
	ActiveWindow time.Duration
	// GCAfter evicts entries unused for this long.
	GCAfter time.Duration
	// SweepInterval is how often Run calls Sweep.
	SweepInterval time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		StaleTime:     30 * time.Second,
		ActiveWindow:  5 * time.Minute,
		GCAfter:       5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Hooks observe cache traffic. Any hook may be nil.
type Hooks struct {
	OnHit        func(key Key)
	OnMiss       func(key Key)
	OnStale      func(key Key)
	OnInvalidate func(key Key)
	OnRefetch    func(key Key)
	OnEvict      func(key Key)
	OnError      func(key Key, err error)
}

type entry struct {
	key         Key
	value       any
	hasValue    bool
	fetchedAt   time.Time
	staleAfter  time.Time
	invalidated bool
	epoch       uint64
	lastUsed    time.Time
	loader      Loader
}

// Cache is the keyed store. The zero value is not usable; call New.
type Cache struct {
	mu    sync.Mutex
	items map[string]*entry
	opts  Options
	hooks Hooks
	sf    singleflight.Group
	bg    sync.WaitGroup
}

// SnapshotEntry is a point-in-time view of one entry for inspection.
type SnapshotEntry struct {
	Key        string    `json:"key"`
	FetchedAt  time.Time `json:"fetchedAt"`
	StaleAfter time.Time `json:"staleAfter"`
	Stale      bool      `json:"stale"`
	LastUsed   time.Time `json:"lastUsed"`
}

// New creates an empty cache.
func New(opts Options, hooks Hooks) *Cache {
	def := DefaultOptions()
	if opts.StaleTime <= 0 {
		opts.StaleTime = def.StaleTime
	}
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = def.ActiveWindow
	}
	if opts.GCAfter <= 0 {
		opts.GCAfter = def.GCAfter
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		items: make(map[string]*entry),
		opts:  opts,
		hooks: hooks,
	}
}

type loadResult struct {
	val any
	err error
}

// Get returns the value for key, loading it with loader on a miss or when
// the entry is stale. Concurrent loads of one key share a single fetch.
//
// If ctx ends first, Get returns ctx.Err() and the shared fetch still
// completes and populates the cache. If refreshing a stale entry fails, the
// previous value is returned together with the error.
func (c *Cache) Get(ctx context.Context, key Key, loader Loader) (any, error) {
	now := c.opts.Now()
	id := key.String()

	c.mu.Lock()
	e, ok := c.items[id]
	if ok {
		e.lastUsed = now
		e.loader = loader
		if e.hasValue && !e.invalidated && now.Before(e.staleAfter) {
			val := e.value
			c.mu.Unlock()
			c.hook(c.hooks.OnHit, key)
			return val, nil
		}
	} else {
		e = &entry{key: key, lastUsed: now, loader: loader}
		c.items[id] = e
	}
	epoch := e.epoch
	prev, hadPrev := e.value, e.hasValue
	c.mu.Unlock()

	if hadPrev {
		c.hook(c.hooks.OnStale, key)
	} else {
		c.hook(c.hooks.OnMiss, key)
	}

	ch := c.sf.DoChan(flightKey(id, epoch), func() (any, error) {
		return c.load(context.WithoutCancel(ctx), key, epoch, loader), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		res := r.Val.(loadResult)
		if res.err != nil {
			if hadPrev {
				return prev, res.err
			}
			return nil, res.err
		}
		return res.val, nil
	}
}

// Peek returns the cached value without loading, stale or not.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key.String()]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// load runs loader and stores its result. A value fetched under an epoch
// that has since been invalidated is stored but left stale.
func (c *Cache) load(ctx context.Context, key Key, epoch uint64, loader Loader) loadResult {
	val, err := loader(ctx)
	if err != nil {
		c.hookErr(key, err)
		return loadResult{err: err}
	}

	now := c.opts.Now()
	c.mu.Lock()
	e, ok := c.items[key.String()]
	if !ok {
		e = &entry{key: key, lastUsed: now, loader: loader}
		c.items[key.String()] = e
	}
	if e.epoch == epoch {
		e.value = val
		e.hasValue = true
		e.fetchedAt = now
		e.staleAfter = now.Add(c.opts.StaleTime)
		e.invalidated = false
	} else if !e.hasValue {
		e.value = val
		e.hasValue = true
		e.fetchedAt = now
	}
	c.mu.Unlock()
	return loadResult{val: val}
}

// Invalidate marks every entry under prefix stale and refetches the active
// ones in the background. Entries that are already marked stale are left
// alone, so repeating an invalidation triggers no extra fetch. It returns
// the number of entries newly marked.
func (c *Cache) Invalidate(prefix Key) int {
	now := c.opts.Now()

	type refetch struct {
		key    Key
		epoch  uint64
		loader Loader
	}
	var pending []refetch
	var marked []Key

	c.mu.Lock()
	for _, e := range c.items {
		if !e.key.HasPrefix(prefix) || e.invalidated {
			continue
		}
		e.invalidated = true
		e.epoch++
		marked = append(marked, e.key)
		if e.loader != nil && now.Sub(e.lastUsed) <= c.opts.ActiveWindow {
			pending = append(pending, refetch{key: e.key, epoch: e.epoch, loader: e.loader})
		}
	}
	for _, r := range pending {
		c.bg.Add(1)
		go func() {
			defer c.bg.Done()
			c.hook(c.hooks.OnRefetch, r.key)
			ch := c.sf.DoChan(flightKey(r.key.String(), r.epoch), func() (any, error) {
				return c.load(context.Background(), r.key, r.epoch, r.loader), nil
			})
			<-ch
		}()
	}
	c.mu.Unlock()

	for _, k := range marked {
		c.hook(c.hooks.OnInvalidate, k)
	}
	return len(marked)
}

// InvalidateAll stale-marks every entry. Used as the reconciliation pass
// after the sync queue drains.
func (c *Cache) InvalidateAll() int {
	return c.Invalidate(nil)
}

// Wait blocks until background refetches started so far have finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// Sweep evicts entries unused since before now minus GCAfter and returns
// how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	var evicted []Key
	c.mu.Lock()
	for id, e := range c.items {
		if now.Sub(e.lastUsed) > c.opts.GCAfter {
			delete(c.items, id)
			evicted = append(evicted, e.key)
		}
	}
	c.mu.Unlock()

	for _, k := range evicted {
		c.hook(c.hooks.OnEvict, k)
	}
	return len(evicted)
}

// Run sweeps on SweepInterval until ctx ends, then waits for background
// refetches to finish.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Wait()
			return
		case <-ticker.C:
			c.Sweep(c.opts.Now())
		}
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Snapshot returns a copy of the current entries for debugging/inspection.
func (c *Cache) Snapshot() []SnapshotEntry {
	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SnapshotEntry, 0, len(c.items))
	for id, e := range c.items {
		out = append(out, SnapshotEntry{
			Key:        id,
			FetchedAt:  e.fetchedAt,
			StaleAfter: e.staleAfter,
			Stale:      e.invalidated || !now.Before(e.staleAfter),
			LastUsed:   e.lastUsed,
		})
	}
	return out
}

// Fetch is a typed wrapper around Get.
func Fetch[T any](ctx context.Context, c *Cache, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	val, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	var zero T
	if val == nil {
		return zero, err
	}
	typed, ok := val.(T)
	if !ok {
		return zero, err
	}
	return typed, err
}

func flightKey(id string, epoch uint64) string {
	return id + "#" + strconv.FormatUint(epoch, 10)
}

func (c *Cache) hook(fn func(Key), key Key) {
	if fn != nil {
		fn(key)
	}
}

func (c *Cache) hookErr(key Key, err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(key, err)
	}
}
