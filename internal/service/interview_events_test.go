package service_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proprep-api/internal/service"
)

func TestInterviewEventBusRelaysBetweenNodes(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hosting := service.NewInterviewEventBus(client, nil, "proprep", zerolog.Nop())
	watching := service.NewInterviewEventBus(client, nil, "proprep", zerolog.Nop())
	hosting.Start(ctx)
	watching.Start(ctx)

	remote, unsubscribe := watching.Subscribe("session-1")
	defer unsubscribe()
	local, unsubscribeLocal := hosting.Subscribe("session-1")
	defer unsubscribeLocal()
	other, unsubscribeOther := watching.Subscribe("session-2")
	defer unsubscribeOther()

	event := service.Event{Type: service.EventState, SessionID: "session-1", Phase: "thinking"}

	var received service.Event
	require.Eventually(t, func() bool {
		if err := hosting.Publish(context.Background(), event); err != nil {
			return false
		}
		select {
		case received = <-remote:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, service.EventState, received.Type)
	require.Equal(t, "thinking", received.Phase)

	select {
	case echoed := <-local:
		t.Fatalf("publishing node received its own event: %+v", echoed)
	case unexpected := <-other:
		t.Fatalf("listener for another session received %+v", unexpected)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInterviewEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := service.NewInterviewEventBus(nil, nil, "", zerolog.Nop())

	events, unsubscribe := bus.Subscribe("session-1")
	unsubscribe()
	unsubscribe()

	_, ok := <-events
	require.False(t, ok)
	require.NoError(t, bus.Publish(context.Background(), service.Event{Type: service.EventState, SessionID: "session-1"}))
}
