package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-portal/internal/observability"
	"github.com/noah-isme/judging-portal/internal/realtime"
)

const changeBufferSize = 16

// ChangeFeed fans document changes out to local subscribers and peer nodes.
type ChangeFeed interface {
	Publish(ctx context.Context, change realtime.Change)
	Subscribe(key string) (<-chan realtime.Change, func())
	Start(ctx context.Context)
}

type changeFeed struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *changeBroker
	nodeID       string
}

type changeEvent struct {
	Source string          `json:"source"`
	Change realtime.Change `json:"change"`
	SentAt time.Time       `json:"sent_at"`
}

type changeBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan realtime.Change]struct{}
}

// NewChangeFeed constructs a change feed. Either transport may be nil.
func NewChangeFeed(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ChangeFeed {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":changes"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".changes"
	}

	return &changeFeed{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "change_feed").Logger(),
		broker: &changeBroker{
			subscribers: make(map[string]map[chan realtime.Change]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (f *changeFeed) Start(ctx context.Context) {
	if f.redis != nil && f.redisChannel != "" {
		go f.consumeRedis(ctx)
	}
	if f.nats != nil && f.natsSubject != "" {
		go f.consumeNATS(ctx)
	}
}

func (f *changeFeed) Publish(ctx context.Context, change realtime.Change) {
	change.Source = f.nodeID
	f.broker.broadcast(change)
	observability.ChangesPublished().WithLabelValues("local").Inc()

	if err := f.publish(ctx, change); err != nil {
		f.logger.Warn().Err(err).Str("key", change.Key).Msg("failed to publish change to peers")
	}
}

func (f *changeFeed) Subscribe(key string) (<-chan realtime.Change, func()) {
	channel := make(chan realtime.Change, changeBufferSize)

	f.broker.subscribe(key, channel)
	observability.ChangeSubscribers().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			f.broker.unsubscribe(key, channel)
			observability.ChangeSubscribers().Dec()
		})
	}

	return channel, cleanup
}

func (f *changeFeed) publish(ctx context.Context, change realtime.Change) error {
	payload, err := json.Marshal(changeEvent{Source: f.nodeID, Change: change, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	if f.redis != nil && f.redisChannel != "" {
		if err := f.redis.Publish(ctx, f.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if f.nats != nil && f.natsSubject != "" {
		if err := f.nats.Publish(f.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (f *changeFeed) consumeRedis(ctx context.Context) {
	pubsub := f.redis.Subscribe(ctx, f.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			f.logger.Error().Err(err).Msg("change redis subscription closed")
			return
		}
		f.handleEvent([]byte(msg.Payload), "redis")
	}
}

func (f *changeFeed) consumeNATS(ctx context.Context) {
	sub, err := f.nats.Subscribe(f.natsSubject, func(msg *nats.Msg) {
		f.handleEvent(msg.Data, "nats")
	})
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to subscribe to nats changes subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			f.logger.Warn().Err(err).Msg("failed to drain change nats subscription")
		}
	}()
}

// handleEvent delivers a peer's change. Redis and NATS may both carry the
// same event; subscribers treat changes as fetch hints so duplicates are harmless.
func (f *changeFeed) handleEvent(payload []byte, source string) {
	var event changeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		f.logger.Warn().Err(err).Msg("invalid change event payload")
		return
	}

	if event.Source == f.nodeID || event.Change.Key == "" {
		return
	}

	observability.ChangesPublished().WithLabelValues(source).Inc()
	f.broker.broadcast(event.Change)
}

func (b *changeBroker) subscribe(key string, ch chan realtime.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[key]; !exists {
		b.subscribers[key] = make(map[chan realtime.Change]struct{})
	}
	b.subscribers[key][ch] = struct{}{}
}

func (b *changeBroker) unsubscribe(key string, ch chan realtime.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[key]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, key)
		}
	}
}

func (b *changeBroker) broadcast(change realtime.Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[change.Key] {
		select {
		case ch <- change:
		default:
		}
	}
}
