package adapters

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry retries op with exponential backoff bounded by ctx, for the
// transient failures a DHT announce or a namecache round trip can hit
// (a bootstrap node timing out, a Redis connection blip) that a second
// attempt a few hundred milliseconds later usually clears.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
