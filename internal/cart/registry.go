package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Registry holds one Store per active profile. Stores idle for longer than
// Options.IdleTTL, or the least recently used ones beyond
// Options.MaxProfiles, are closed and dropped; the next request for that
// profile hydrates a fresh store from storage.
type Registry struct {
	storage storage.Store
	opts    Options
	now     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	entries   map[string]*registryEntry
	lastSweep time.Time
	closed    bool
}

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

// NewRegistry builds a registry whose stores share st.
func NewRegistry(st storage.Store, opts Options) (*Registry, error) {
	if st == nil {
		return nil, errors.New("cart storage is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		storage: st,
		opts:    opts,
		now:     now,
		entries: map[string]*registryEntry{},
	}, nil
}

// Get returns the hydrated store for profileID, creating it on first use.
// Concurrent first requests for the same profile share one hydration.
func (r *Registry) Get(ctx context.Context, profileID string) (*Store, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	if s := r.touch(profileID); s != nil {
		return s, nil
	}

	v, err, _ := r.group.Do(profileID, func() (interface{}, error) {
		if s := r.touch(profileID); s != nil {
			return s, nil
		}
		s, err := NewStore(profileID, r.storage, r.opts)
		if err != nil {
			return nil, err
		}
		if err := s.Load(ctx); err != nil {
			s.Close()
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			s.Close()
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart registry closed")
		}
		now := r.now()
		r.entries[profileID] = &registryEntry{store: s, lastUsed: now}
		evicted := r.evictLocked(now, profileID)
		r.mu.Unlock()

		for _, old := range evicted {
			old.Close()
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (r *Registry) touch(profileID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[profileID]
	if !ok {
		return nil
	}
	e.lastUsed = r.now()
	return e.store
}

// Sweep closes every store idle for longer than the configured TTL and
// returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	evicted := r.evictIdleLocked(r.now())
	r.mu.Unlock()
	for _, s := range evicted {
		s.Close()
	}
	return len(evicted)
}

// Run sweeps idle stores every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.opts.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// evictLocked applies both limits after an insert. keep is never evicted.
// The idle scan runs at most once per half TTL.
func (r *Registry) evictLocked(now time.Time, keep string) []*Store {
	var evicted []*Store
	if r.opts.IdleTTL > 0 && now.Sub(r.lastSweep) >= r.opts.IdleTTL/2 {
		evicted = r.evictIdleLocked(now)
	}
	if r.opts.MaxProfiles <= 0 {
		return evicted
	}
	for len(r.entries) > r.opts.MaxProfiles {
		oldestID := ""
		var oldest time.Time
		for id, e := range r.entries {
			if id == keep {
				continue
			}
			if oldestID == "" || e.lastUsed.Before(oldest) {
				oldestID, oldest = id, e.lastUsed
			}
		}
		if oldestID == "" {
			break
		}
		evicted = append(evicted, r.entries[oldestID].store)
		delete(r.entries, oldestID)
	}
	return evicted
}

func (r *Registry) evictIdleLocked(now time.Time) []*Store {
	r.lastSweep = now
	if r.opts.IdleTTL <= 0 {
		return nil
	}
	var evicted []*Store
	for id, e := range r.entries {
		if now.Sub(e.lastUsed) > r.opts.IdleTTL {
			evicted = append(evicted, e.store)
			delete(r.entries, id)
		}
	}
	return evicted
}

// CartLines returns a copy of the profile's cart.
func (r *Registry) CartLines(ctx context.Context, profileID string) ([]Line, error) {
	s, err := r.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return s.Lines(), nil
}

// ClearCart empties the profile's cart.
func (r *Registry) ClearCart(ctx context.Context, profileID string) error {
	s, err := r.Get(ctx, profileID)
	if err != nil {
		return err
	}
	return s.ClearCart(ctx)
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close releases every store.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, e := range r.entries {
		e.store.Close()
		delete(r.entries, id)
	}
}
