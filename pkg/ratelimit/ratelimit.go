// Package ratelimit enforces a per-provider token budget so a runaway
// client cannot burn through a paid API quota.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Budget is a thin wrapper around github.com/vnmchuo/ratelimiter keyed by
// provider name, with a one minute window.
type Budget struct {
	store extratelimit.Limiter
}

func NewBudget(rdb *redis.Client, tokensPerMinute int64) *Budget {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(tokensPerMinute)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Budget{store: store}
}

func NewTestBudget(store extratelimit.Limiter) *Budget {
	return &Budget{store: store}
}

// Allow reserves tokens against the provider's minute window. Estimated
// counts are fine; the window resets quickly enough that drift is bounded.
func (b *Budget) Allow(ctx context.Context, providerName string, tokens int) (bool, error) {
	key := fmt.Sprintf("budget:provider:%s", providerName)
	res, err := b.store.AllowN(ctx, key, tokens)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (b *Budget) Status(ctx context.Context, providerName string) (*extratelimit.Result, error) {
	key := fmt.Sprintf("budget:provider:%s", providerName)
	return b.store.Status(ctx, key)
}
