package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestTypedSubscribeDeliversPayload(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := Subscribe[ChannelStateEvent](bus, TopicEngineChannel)
	defer sub.Close()

	want := ChannelStateEvent{
		Up:       true,
		Endpoint: "http://127.0.0.1:22140",
		Reason:   "initialized",
	}
	bus.Publish(context.Background(), Envelope{
		Topic:   TopicEngineChannel,
		Payload: want,
	})

	select {
	case got := <-sub.C():
		if got.Payload != want {
			t.Fatalf("payload mismatch: got %+v, want %+v", got.Payload, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for typed event")
	}
}

func TestTypedSubscribeKeepsEnvelopeMetadata(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := Subscribe[ChannelStateEvent](bus, TopicEngineChannel)
	defer sub.Close()

	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	bus.Publish(context.Background(), Envelope{
		Topic:     TopicEngineChannel,
		Timestamp: ts,
		Source:    SourceTransport,
		Payload:   ChannelStateEvent{Up: true},
	})

	select {
	case got := <-sub.C():
		if got.Topic != TopicEngineChannel {
			t.Errorf("Topic: got %v, want %v", got.Topic, TopicEngineChannel)
		}
		if !got.Timestamp.Equal(ts) {
			t.Errorf("Timestamp: got %v, want %v", got.Timestamp, ts)
		}
		if got.Source != SourceTransport {
			t.Errorf("Source: got %v, want %v", got.Source, SourceTransport)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for typed event")
	}
}

func TestTypedSubscribeSkipsForeignPayloads(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := Subscribe[ChannelStateEvent](bus, TopicEngineChannel)
	defer sub.Close()

	bus.Publish(context.Background(), Envelope{
		Topic:   TopicEngineChannel,
		Payload: "not a ChannelStateEvent",
	})
	bus.Publish(context.Background(), Envelope{
		Topic:   TopicEngineChannel,
		Payload: ChannelStateEvent{Up: true, Reason: "recovered"},
	})

	select {
	case got := <-sub.C():
		if !got.Payload.Up || got.Payload.Reason != "recovered" {
			t.Fatalf("expected the matching event, got %+v", got.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("mismatched payload blocked delivery")
	}
}

func TestTypedSubscribeCloseIdempotent(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := Subscribe[ChannelStateEvent](bus, TopicEngineChannel)
	sub.Close()
	sub.Close()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected a closed channel after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestTypedSubscribeCloseUnblocksForwarder(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := Subscribe[ChannelStateEvent](bus, TopicEngineChannel)

	// Nobody reads sub.C(), so the forwarder ends up blocked on the
	// unbuffered typed channel.
	bus.Publish(context.Background(), Envelope{
		Topic:   TopicEngineChannel,
		Payload: ChannelStateEvent{Up: true},
	})
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sub.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close deadlocked against the blocked forwarder")
	}
}

func TestTypedSubscribeNilBus(t *testing.T) {
	sub := Subscribe[ChannelStateEvent](nil, TopicEngineChannel)

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected a closed channel from a nil bus")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for closed channel on nil bus")
	}

	// Close on the nil-bus subscription must not panic.
	sub.Close()
}

func TestTypedSubscribeSurvivesBusShutdown(t *testing.T) {
	bus := New()
	sub := Subscribe[ChannelStateEvent](bus, TopicEngineChannel)

	bus.Shutdown()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected channel to close after bus shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close after shutdown")
	}

	select {
	case <-sub.done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not exit after bus shutdown")
	}
}
