package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscription tracks a subscriber with its cancellation mechanism.
type subscription struct {
	cancel context.CancelFunc
}

// Manager provides Redis-Streams-based pub/sub for research-session
// events, adapted from the teacher's internal/streaming.Manager: the
// subscribe/reader-goroutine/unsubscribe lifecycle, XAdd-with-MaxLen
// publish, and XRead-with-backoff reader loop are unchanged in shape. The
// event-log-to-Postgres batching half of the teacher's manager is dropped
// here — this service persists the final session row once via
// internal/relational rather than every streamed chunk, so there is
// nothing for a batched event-log writer to do.
//
// Callers must not close subscription channels themselves; the reader
// goroutine owns the channel lifetime. Always call Unsubscribe.
type Manager struct {
	mu          sync.RWMutex
	redis       *redis.Client
	subscribers map[string]map[chan Event]*subscription
	capacity    int
	logger      *zap.Logger
	shutdownCh  chan struct{}
	wg          sync.WaitGroup
}

// New creates a Manager. redisClient may be nil, in which case Publish is a
// a no-op and Subscribe channels stay open (but empty) until cancelled —
// useful for tests that only exercise the event constructors.
func New(redisClient *redis.Client, capacity int, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		redis:       redisClient,
		subscribers: make(map[string]map[chan Event]*subscription),
		capacity:    capacity,
		logger:      logger,
		shutdownCh:  make(chan struct{}),
	}
}

func (m *Manager) streamKey(sessionID string) string {
	return fmt.Sprintf("revera:research:events:%s", sessionID)
}

func (m *Manager) seqKey(sessionID string) string {
	return fmt.Sprintf("revera:research:events:%s:seq", sessionID)
}

// Subscribe adds a subscriber channel for sessionID; the caller must drain
// it and call Unsubscribe when done.
func (m *Manager) Subscribe(sessionID string, buffer int) chan Event {
	return m.SubscribeFrom(sessionID, buffer, "0-0")
}

// SubscribeFrom adds a subscriber starting at a specific Redis stream ID,
// letting a reconnecting caller resume without replaying events it already
// received.
func (m *Manager) SubscribeFrom(sessionID string, buffer int, startID string) chan Event {
	ch := make(chan Event, buffer)
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	subs := m.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]*subscription)
		m.subscribers[sessionID] = subs
	}
	subs[ch] = &subscription{cancel: cancel}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.streamReaderFrom(ctx, sessionID, ch, startID)

	return ch
}

// Unsubscribe cancels the reader goroutine; it closes ch after exiting.
func (m *Manager) Unsubscribe(sessionID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[sessionID]; ok {
		if sub, exists := subs[ch]; exists {
			sub.cancel()
			delete(subs, ch)
			if len(subs) == 0 {
				delete(m.subscribers, sessionID)
			}
		}
	}
}

// Shutdown stops every reader goroutine and waits for them to exit.
func (m *Manager) Shutdown() {
	close(m.shutdownCh)
	m.wg.Wait()
}

func (m *Manager) streamReaderFrom(ctx context.Context, sessionID string, ch chan Event, startID string) {
	defer m.wg.Done()
	defer close(ch)

	if m.redis == nil {
		select {
		case <-ctx.Done():
		case <-m.shutdownCh:
		}
		return
	}

	streamKey := m.streamKey(sessionID)
	lastID := startID
	retryDelay := time.Second
	const maxRetryDelay = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdownCh:
			return
		default:
		}

		result, err := m.redis.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, lastID},
			Count:   10,
			Block:   5 * time.Second,
		}).Result()

		if err == redis.Nil {
			retryDelay = time.Second
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("eventstream: read failed, backing off",
				zap.String("session_id", sessionID), zap.Duration("retry_in", retryDelay), zap.Error(err))
			select {
			case <-time.After(retryDelay):
				retryDelay *= 2
				if retryDelay > maxRetryDelay {
					retryDelay = maxRetryDelay
				}
			case <-ctx.Done():
				return
			case <-m.shutdownCh:
				return
			}
			continue
		}
		retryDelay = time.Second

		for _, stream := range result {
			for _, message := range stream.Messages {
				lastID = message.ID
				evt := decodeEvent(sessionID, message)
				select {
				case ch <- evt:
				default:
					if evt.IsTerminal() {
						m.logger.Error("eventstream: dropped terminal event, subscriber slow",
							zap.String("session_id", sessionID), zap.String("type", string(evt.Type)))
					} else {
						m.logger.Warn("eventstream: dropped event, subscriber slow",
							zap.String("session_id", sessionID), zap.String("type", string(evt.Type)))
					}
				}
			}
		}
	}
}

func decodeEvent(sessionID string, message redis.XMessage) Event {
	evt := Event{SessionID: sessionID, StreamID: message.ID, Payload: map[string]interface{}{}}
	if v, ok := message.Values["type"].(string); ok {
		evt.Type = EventType(v)
	}
	if v, ok := message.Values["seq"].(string); ok {
		if seq, err := strconv.ParseUint(v, 10, 64); err == nil {
			evt.Seq = seq
		}
	}
	if v, ok := message.Values["ts_nano"].(string); ok {
		if nano, err := strconv.ParseInt(v, 10, 64); err == nil {
			evt.Timestamp = time.Unix(0, nano)
		}
	}
	if v, ok := message.Values["payload"].(string); ok && v != "" {
		var p map[string]interface{}
		if err := json.Unmarshal([]byte(v), &p); err == nil {
			evt.Payload = p
		}
	}
	return evt
}

// Publish appends evt to the session's Redis stream and delivers it to
// local subscribers via their reader goroutines (which themselves read
// back from Redis, so Publish only needs to write once). When no Redis
// client is configured, Publish is a no-op — there is no local-only
// fallback path since every subscriber reads from the stream.
func (m *Manager) Publish(ctx context.Context, evt Event) error {
	if m.redis == nil {
		return nil
	}
	if evt.Payload == nil {
		evt.Payload = map[string]interface{}{}
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	seq, err := m.redis.Incr(ctx, m.seqKey(evt.SessionID)).Result()
	if err != nil {
		m.logger.Error("eventstream: seq increment failed", zap.String("session_id", evt.SessionID), zap.Error(err))
	} else {
		evt.Seq = uint64(seq)
	}

	payloadJSON, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("eventstream: marshal payload: %w", err)
	}

	streamKey := m.streamKey(evt.SessionID)
	_, err = m.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: int64(m.capacity),
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(evt.Type),
			"payload": string(payloadJSON),
			"ts_nano": strconv.FormatInt(evt.Timestamp.UnixNano(), 10),
			"seq":     strconv.FormatUint(evt.Seq, 10),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("eventstream: publish: %w", err)
	}

	m.redis.Expire(ctx, streamKey, 24*time.Hour)
	m.redis.Expire(ctx, m.seqKey(evt.SessionID), 48*time.Hour)
	return nil
}
