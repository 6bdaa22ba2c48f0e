package gate

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const invalidateChannel = "healthpulse:gate:invalidate"

// Invalidator fans cache invalidations out to sibling processes over Redis
// Pub/Sub. The cache stays correct without it (it is per-process and
// TTL-bounded); this just tightens the window after logout/resync.
type Invalidator struct {
	rdb          *redis.Client
	log          *zap.Logger
	onInvalidate func(userID string)
}

// NewInvalidator creates the Redis-backed invalidation fan-out
func NewInvalidator(rdb *redis.Client, log *zap.Logger) *Invalidator {
	return &Invalidator{rdb: rdb, log: log}
}

func (i *Invalidator) publish(ctx context.Context, userID string) {
	if err := i.rdb.Publish(ctx, invalidateChannel, userID).Err(); err != nil {
		i.log.Warn("gate: invalidation publish failed", zap.Error(err))
	}
}

// Run subscribes and applies remote invalidations until ctx is canceled
func (i *Invalidator) Run(ctx context.Context) {
	pubsub := i.rdb.Subscribe(ctx, invalidateChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if i.onInvalidate != nil {
				i.onInvalidate(msg.Payload)
			}
		}
	}
}
