package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"go.uber.org/zap"
)

// 이벤트 종류
const (
	EventPlayerEnqueued    = "player_enqueued"
	EventMatchingRequested = "matching_requested"
	EventAnnouncement      = "announcement"
)

// MatchmakingEvent 인스턴스 간 매칭 이벤트
type MatchmakingEvent struct {
	Type       string          `json:"type"`
	InstanceID string          `json:"instance_id"`
	PlayerID   int64           `json:"player_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// EventHandler 수신 이벤트 처리. fromSelf 는 이 인스턴스가 발행한 이벤트
type EventHandler func(ctx context.Context, event MatchmakingEvent, fromSelf bool) error

// MatchmakingCoordinator Redis Pub/Sub 기반 분산 매칭 조정자
type MatchmakingCoordinator struct {
	client     redis.UniversalClient
	logger     *zap.Logger
	instanceID string

	eventChannel string
	stopOnce     sync.Once
	stopChan     chan struct{}
}

var (
	_ service.EnqueuePublisher = (*MatchmakingCoordinator)(nil)
	_ service.Notifier         = (*MatchmakingCoordinator)(nil)
)

// NewMatchmakingCoordinator 분산 매칭 조정자 생성
func NewMatchmakingCoordinator(client redis.UniversalClient, channel string, logger *zap.Logger) *MatchmakingCoordinator {
	if channel == "" {
		channel = "matchmaking:events"
	}
	return &MatchmakingCoordinator{
		client:       client,
		logger:       logger,
		instanceID:   uuid.New().String(),
		eventChannel: channel,
		stopChan:     make(chan struct{}),
	}
}

func (c *MatchmakingCoordinator) InstanceID() string {
	return c.instanceID
}

// Start 이벤트 수신 시작. Stop 또는 ctx 취소까지 블록
func (c *MatchmakingCoordinator) Start(ctx context.Context, handler EventHandler) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pubsub := c.client.Subscribe(subCtx, c.eventChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.logger.Info("Matchmaking coordinator started",
		zap.String("instance_id", c.instanceID),
		zap.String("channel", c.eventChannel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event MatchmakingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Error("Failed to unmarshal event", zap.Error(err))
				continue
			}

			c.logger.Debug("Received matchmaking event",
				zap.String("type", event.Type),
				zap.String("from", event.InstanceID))

			if err := handler(subCtx, event, event.InstanceID == c.instanceID); err != nil {
				c.logger.Error("Failed to handle event",
					zap.String("type", event.Type),
					zap.Error(err))
			}

		case <-c.stopChan:
			c.logger.Info("Matchmaking coordinator stopped")
			return nil

		case <-subCtx.Done():
			return subCtx.Err()
		}
	}
}

// Stop 이벤트 수신 중지
func (c *MatchmakingCoordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// PublishEvent 매칭 이벤트 발행
func (c *MatchmakingCoordinator) PublishEvent(ctx context.Context, event MatchmakingEvent) error {
	event.InstanceID = c.instanceID
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.client.Publish(ctx, c.eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	c.logger.Debug("Published matchmaking event", zap.String("type", event.Type))
	return nil
}

// NotifyPlayerEnqueued 플레이어가 큐에 추가됨을 알림
func (c *MatchmakingCoordinator) NotifyPlayerEnqueued(ctx context.Context, playerID int64) error {
	return c.PublishEvent(ctx, MatchmakingEvent{
		Type:     EventPlayerEnqueued,
		PlayerID: playerID,
	})
}

// NotifyMatchingRequested 매칭 요청 알림 (관리자 강제 실행 등)
func (c *MatchmakingCoordinator) NotifyMatchingRequested(ctx context.Context) error {
	return c.PublishEvent(ctx, MatchmakingEvent{Type: EventMatchingRequested})
}

// Announce 서비스 알림을 다른 인스턴스에 전달
func (c *MatchmakingCoordinator) Announce(ctx context.Context, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("Failed to marshal announcement", zap.String("event", name), zap.Error(err))
		return
	}

	err = c.PublishEvent(ctx, MatchmakingEvent{
		Type:    EventAnnouncement,
		Name:    name,
		Payload: data,
	})
	if err != nil {
		c.logger.Warn("Failed to publish announcement", zap.String("event", name), zap.Error(err))
	}
}
