package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

// ChannelMatchUpdates é o canal padrão consumido pelo websocket do betting-service
const ChannelMatchUpdates = "match_updates_broadcast"

type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = ChannelMatchUpdates
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

// PublishMatchUpdate serializa e publica no canal configurado
func (b *RedisBroadcaster) PublishMatchUpdate(ctx context.Context, u events.MatchUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBroadcaster) Channel() string { return b.channel }
