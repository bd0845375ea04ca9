package services

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Publisher is the relay side the services need. *relay.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// publishQuietly publishes after a committed write. The write already
// succeeded, so a relay failure is logged and not returned.
func publishQuietly(ctx context.Context, p Publisher, channel string, v any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, channel, v); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("relay publish failed")
	}
}
