package events

import (
	"context"

	"github.com/maumercado/taskdispatch/internal/logger"
)

// Mirror subscribes to every event on bus and republishes each one to dst
// (typically a RedisPubSub). It is strictly additive: a publish failure is
// logged and otherwise ignored, since the optional event mirror must never
// affect dispatch correctness. Mirror blocks until ctx is cancelled.
func Mirror(ctx context.Context, bus *Bus, dst Publisher) {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("event mirror: failed to subscribe to bus")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := dst.Publish(ctx, event); err != nil {
				logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("event mirror: publish failed")
			}
		}
	}
}
