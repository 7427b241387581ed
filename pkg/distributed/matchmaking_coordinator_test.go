package distributed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMatchmakingCoordinator_DeliversEvents(t *testing.T) {
	_, client := setupRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := NewMatchmakingCoordinator(client, "test:events", zap.NewNop())
	receiver := NewMatchmakingCoordinator(client, "test:events", zap.NewNop())

	type received struct {
		event    MatchmakingEvent
		fromSelf bool
	}
	got := make(chan received, 16)
	go func() {
		_ = receiver.Start(ctx, func(_ context.Context, e MatchmakingEvent, fromSelf bool) error {
			got <- received{event: e, fromSelf: fromSelf}
			return nil
		})
	}()
	defer receiver.Stop()

	// 구독이 준비될 때까지 재발행
	var first received
	require.Eventually(t, func() bool {
		assert.NoError(t, sender.NotifyPlayerEnqueued(ctx, 42))
		select {
		case first = <-got:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, EventPlayerEnqueued, first.event.Type)
	assert.Equal(t, int64(42), first.event.PlayerID)
	assert.Equal(t, sender.InstanceID(), first.event.InstanceID)
	assert.False(t, first.fromSelf)

	sender.Announce(ctx, "queue_updated", map[string]int{"size": 3})
	for {
		select {
		case r := <-got:
			if r.event.Type != EventAnnouncement {
				continue
			}
			assert.Equal(t, "queue_updated", r.event.Name)
			var payload map[string]int
			require.NoError(t, json.Unmarshal(r.event.Payload, &payload))
			assert.Equal(t, 3, payload["size"])
			return
		case <-time.After(2 * time.Second):
			t.Fatal("announcement not delivered")
		}
	}
}

func TestMatchmakingCoordinator_MarksOwnEvents(t *testing.T) {
	_, client := setupRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewMatchmakingCoordinator(client, "test:self", zap.NewNop())
	got := make(chan bool, 16)
	go func() {
		_ = c.Start(ctx, func(_ context.Context, _ MatchmakingEvent, fromSelf bool) error {
			got <- fromSelf
			return nil
		})
	}()
	defer c.Stop()

	require.Eventually(t, func() bool {
		assert.NoError(t, c.NotifyMatchingRequested(ctx))
		select {
		case fromSelf := <-got:
			return fromSelf
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
