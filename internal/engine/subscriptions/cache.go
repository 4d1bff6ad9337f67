package subscriptions

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// StatusCache holds active outcomes keyed by organization id. An entry is
// never served past the end of the entitlement it describes, and writers
// invalidate explicitly.
type StatusCache struct {
	lru *expirable.LRU[string, Outcome]
}

func NewStatusCache(size int, ttl time.Duration) *StatusCache {
	return &StatusCache{lru: expirable.NewLRU[string, Outcome](size, nil, ttl)}
}

func (c *StatusCache) Get(orgID string, now time.Time) (Outcome, bool) {
	out, ok := c.lru.Get(orgID)
	if !ok {
		return Outcome{}, false
	}
	if out.EndsAt != nil && !now.Before(*out.EndsAt) {
		c.lru.Remove(orgID)
		return Outcome{}, false
	}
	if out.EndsAt != nil {
		out.DaysRemaining = DaysRemaining(*out.EndsAt, now)
	}
	return out, true
}

// Put stores only active outcomes; denials are always re-evaluated.
func (c *StatusCache) Put(orgID string, out Outcome) {
	if !out.Active {
		return
	}
	c.lru.Add(orgID, out)
}

func (c *StatusCache) Invalidate(orgID string) {
	c.lru.Remove(orgID)
}

func (c *StatusCache) Len() int {
	return c.lru.Len()
}
