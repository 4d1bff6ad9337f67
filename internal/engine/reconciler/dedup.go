package reconciler

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupWindow remembers applied event ids for a bounded time.
type DedupWindow struct {
	seen *expirable.LRU[string, struct{}]
}

func NewDedupWindow(size int, ttl time.Duration) *DedupWindow {
	return &DedupWindow{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (d *DedupWindow) Seen(id string) bool {
	if d == nil || id == "" {
		return false
	}
	return d.seen.Contains(id)
}

func (d *DedupWindow) Mark(id string) {
	if d == nil || id == "" {
		return
	}
	d.seen.Add(id, struct{}{})
}
