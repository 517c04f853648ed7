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
)

// EventPublisher fans interview events out to other API nodes.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(sessionID string) (<-chan Event, func())
	Start(ctx context.Context)
}

type interviewEnvelope struct {
	Source string    `json:"source"`
	Event  Event     `json:"event"`
	SentAt time.Time `json:"sent_at"`
}

type interviewEventBus struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger

	mu        sync.RWMutex
	listeners map[string]map[chan Event]struct{}
}

// NewInterviewEventBus creates a publisher backed by redis pub/sub and NATS. Either
// transport may be nil.
func NewInterviewEventBus(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":interviews"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".interviews"
	}

	return &interviewEventBus{
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "interview_events").Logger(),
		listeners:    make(map[string]map[chan Event]struct{}),
	}
}

func (b *interviewEventBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(interviewEnvelope{
		Source: b.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if b.redis != nil && b.redisChannel != "" {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// Subscribe listens for events about a session that lives on another node.
func (b *interviewEventBus) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.listeners[sessionID] == nil {
		b.listeners[sessionID] = make(map[chan Event]struct{})
	}
	b.listeners[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners[sessionID], ch)
			if len(b.listeners[sessionID]) == 0 {
				delete(b.listeners, sessionID)
			}
			close(ch)
		})
	}
}

// Start consumes remote events. Both transports carry the same events, so NATS
// is preferred when configured.
func (b *interviewEventBus) Start(ctx context.Context) {
	switch {
	case b.nats != nil && b.natsSubject != "":
		go b.consumeNATS(ctx)
	case b.redis != nil && b.redisChannel != "":
		go b.consumeRedis(ctx)
	}
}

func (b *interviewEventBus) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error().Err(err).Msg("interview redis subscription closed")
			return
		}
		b.handle([]byte(msg.Payload))
	}
}

func (b *interviewEventBus) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handle(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats interview subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain interview nats subscription")
		}
	}()
}

func (b *interviewEventBus) handle(data []byte) {
	var envelope interviewEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid interview event")
		return
	}
	if envelope.Source == b.nodeID {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners[envelope.Event.SessionID] {
		select {
		case ch <- envelope.Event:
		default:
			b.logger.Debug().Str("session_id", envelope.Event.SessionID).Msg("dropping remote event for slow listener")
		}
	}
}
