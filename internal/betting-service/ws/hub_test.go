package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/objective-bet-platform/internal/shared/pubsub"
	"github.com/radieske/objective-bet-platform/pkg/contracts/events"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func allowAll(*http.Request) bool { return true }

func TestHub_SubscribeBroadcastUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop(), allowAll)
	conn := dial(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", MatchID: "m1"}))
	require.Eventually(t, func() bool { return hub.Subscribers("m1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(events.MatchUpdate{MatchID: "m2", Kind: "pot"})
	hub.Broadcast(events.MatchUpdate{MatchID: "m1", Kind: "pot", Pot: decimal.NewFromInt(25)})

	var got MatchUpdate
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "match_update", got.Type)
	assert.Equal(t, "m1", got.MatchID)
	assert.True(t, got.Payload.Pot.Equal(decimal.NewFromInt(25)))

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "unsubscribe", MatchID: "m1"}))
	require.Eventually(t, func() bool { return hub.Subscribers("m1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_DisconnectDropsSubscriptions(t *testing.T) {
	hub := NewHub(zap.NewNop(), allowAll)
	conn := dial(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", MatchID: "m1"}))
	require.Eventually(t, func() bool { return hub.Subscribers("m1") == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers("m1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedisSubscriber_ForwardsToHub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub(zap.NewNop(), allowAll)
	conn := dial(t, hub)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", MatchID: "m1"}))
	require.Eventually(t, func() bool { return hub.Subscribers("m1") == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRedisSubscriber(ctx, rdb, pubsub.ChannelMatchUpdates, hub, zap.NewNop())
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(pubsub.ChannelMatchUpdates)[pubsub.ChannelMatchUpdates] == 1
	}, time.Second, 10*time.Millisecond)

	b := pubsub.NewRedisBroadcaster(rdb, pubsub.ChannelMatchUpdates)
	require.NoError(t, b.PublishMatchUpdate(ctx, events.MatchUpdate{MatchID: "m1", Kind: "status", Status: "open"}))

	var got MatchUpdate
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "open", got.Payload.Status)
}
