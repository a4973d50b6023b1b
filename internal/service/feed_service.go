package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

// FeedConfig configures the change feed.
type FeedConfig struct {
	Enabled       bool
	ChannelPrefix string
	ClientBuffer  int
}

// FeedService fans enrollment lifecycle events out to connected listeners
// over Redis pub/sub. Publishing is fire-and-forget: a Redis hiccup costs
// the event, never the transaction that produced it.
type FeedService struct {
	client *redis.Client
	config FeedConfig
	logger *zap.Logger
}

// NewFeedService constructs FeedService.
func NewFeedService(client *redis.Client, config FeedConfig, logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = "feed"
	}
	if config.ClientBuffer <= 0 {
		config.ClientBuffer = 16
	}
	return &FeedService{client: client, config: config, logger: logger}
}

func (s *FeedService) channel() string {
	return s.config.ChannelPrefix + ":events"
}

// Publish pushes one event onto the feed.
func (s *FeedService) Publish(ctx context.Context, event models.FeedEvent) {
	if !s.config.Enabled || s.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal feed event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, s.channel(), payload).Err(); err != nil {
		s.logger.Warn("failed to publish feed event", zap.String("type", event.Type), zap.Error(err))
	}
}

// Subscribe opens a stream of feed events. The returned cancel function must
// be called when the listener disconnects. Slow listeners drop events rather
// than back-pressuring the feed.
func (s *FeedService) Subscribe(ctx context.Context, studentID string) (<-chan models.FeedEvent, func(), error) {
	events := make(chan models.FeedEvent, s.config.ClientBuffer)
	if !s.config.Enabled || s.client == nil {
		close(events)
		return events, func() {}, nil
	}

	sub := s.client.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(events)
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.FeedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("failed to decode feed event", zap.Error(err))
					continue
				}
				if studentID != "" && event.StudentID != studentID {
					continue
				}
				select {
				case events <- event:
				default:
					s.logger.Debug("dropping feed event for slow listener", zap.String("type", event.Type))
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = sub.Close()
	}
	return events, cancel, nil
}
