package auth

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Denylist keeps revoked token ids in memory until they expire
type Denylist struct {
	store *cache.Cache
}

func NewDenylist(cleanupInterval time.Duration) *Denylist {
	return &Denylist{store: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (d *Denylist) Add(tokenID string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	d.store.Set(tokenID, struct{}{}, ttl)
}

func (d *Denylist) Contains(tokenID string) bool {
	_, found := d.store.Get(tokenID)
	return found
}

func (d *Denylist) Len() int {
	return d.store.ItemCount()
}
