package registry

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/synctray/internal/dirstate"
)

// RecentChanges keeps the most recent file changes, evicting the oldest.
type RecentChanges struct {
	cache *lru.Cache[uint64, dirstate.FileChange]
	seq   atomic.Uint64
}

func NewRecentChanges(size int) (*RecentChanges, error) {
	cache, err := lru.New[uint64, dirstate.FileChange](size)
	if err != nil {
		return nil, err
	}
	return &RecentChanges{cache: cache}, nil
}

func (r *RecentChanges) Add(c dirstate.FileChange) {
	r.cache.Add(r.seq.Add(1), c)
}

// List returns the changes newest first.
func (r *RecentChanges) List() []dirstate.FileChange {
	keys := r.cache.Keys()
	out := make([]dirstate.FileChange, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if c, ok := r.cache.Peek(keys[i]); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *RecentChanges) Len() int {
	return r.cache.Len()
}

func (r *RecentChanges) Purge() {
	r.cache.Purge()
}
