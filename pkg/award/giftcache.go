package award

import (
	"context"
	"sync"
	"time"

	"github.com/wisbric/paygate/pkg/platformclient"
)

// giftCacheTTL bounds how long a fetched gift catalog is trusted before the
// next lookup re-fetches it.
const giftCacheTTL = 5 * time.Minute

// giftLister is the platform surface the gift cache fetches from.
type giftLister interface {
	GetAvailableGifts(ctx context.Context) ([]platformclient.Gift, error)
}

// giftCache memoizes the platform's available-gifts list for giftCacheTTL.
type giftCache struct {
	mu        sync.Mutex
	platform  giftLister
	now       func() time.Time
	fetchedAt time.Time
	gifts     []platformclient.Gift
}

func newGiftCache(platform giftLister) *giftCache {
	return &giftCache{platform: platform, now: time.Now}
}

// get returns the cached gift list, refreshing it if stale.
func (c *giftCache) get(ctx context.Context) ([]platformclient.Gift, error) {
	c.mu.Lock()
	if c.gifts != nil && c.now().Sub(c.fetchedAt) < giftCacheTTL {
		gifts := c.gifts
		c.mu.Unlock()
		return gifts, nil
	}
	c.mu.Unlock()

	gifts, err := c.platform.GetAvailableGifts(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.gifts = gifts
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return gifts, nil
}
