package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ntentasd/ecobin-api/internal/retry"
)

// Fetch returns the cached value under key, or runs load under the retry
// policy and caches its result for ttl. Cache errors other than a miss are
// treated as a miss; a failed write-back does not fail the fetch.
func Fetch[T any](
	ctx context.Context,
	c Cache,
	key string,
	ttl time.Duration,
	policy retry.Policy,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if raw, err := c.FetchAggregate(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	}

	v, err := retry.Do(ctx, policy, load)
	if err != nil {
		return v, err
	}

	_ = c.StoreAggregate(ctx, key, v, ttl)
	return v, nil
}
