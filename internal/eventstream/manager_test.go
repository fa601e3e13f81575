package eventstream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thornxyz/revera/internal/state"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, 256, zaptest.NewLogger(t))
}

func TestPublishAndSubscribeRoundTrips(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sessionID := "sess-1"

	ch := m.Subscribe(sessionID, 8)
	defer m.Unsubscribe(sessionID, ch)

	require.NoError(t, m.Publish(ctx, MessageIDEvent(sessionID, "msg-1")))
	require.NoError(t, m.Publish(ctx, AnswerChunkEvent(sessionID, "hello")))

	select {
	case evt := <-ch:
		require.Equal(t, EventMessageID, evt.Type)
		require.Equal(t, "msg-1", evt.Payload["message_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message_id event")
	}

	select {
	case evt := <-ch:
		require.Equal(t, EventAnswerChunk, evt.Type)
		require.Equal(t, "hello", evt.Payload["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for answer_chunk event")
	}
}

func TestCompleteEventIsTerminal(t *testing.T) {
	evt := CompleteEvent("sess-1", "msg-1", state.ConfidenceHigh, 1200, nil, nil, "the answer")
	require.True(t, evt.IsTerminal())

	evt2 := ErrorEvent("sess-1", "boom")
	require.True(t, evt2.IsTerminal())

	evt3 := ThoughtChunkEvent("sess-1", "thinking")
	require.False(t, evt3.IsTerminal())
}

func TestPublicRendersFlatEnvelope(t *testing.T) {
	evt := AgentStatusEvent("sess-1", "planner", StatusRunning)
	b, err := evt.Public()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"agent_status","node":"planner","status":"running"}`, string(b))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := newTestManager(t)
	ch := m.Subscribe("sess-2", 4)
	m.Unsubscribe("sess-2", ch)

	select {
	case _, ok := <-ch:
		require.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed after unsubscribe")
	}
}
