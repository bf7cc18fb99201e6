package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var received Event
	var wg sync.WaitGroup
	wg.Add(1)

	unsub := bus.Subscribe("task-1", func(e Event) {
		received = e
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: SessionStarted, SessionKey: "task-1"})

	// Wait for async delivery
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Type != SessionStarted {
			t.Errorf("Expected SessionStarted, got %v", received.Type)
		}
		if received.SessionKey != "task-1" {
			t.Errorf("Expected 'task-1', got %v", received.SessionKey)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBus_SubscribeOtherKeyNotDelivered(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe("task-1", func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	defer unsub()

	bus.PublishSync(Event{Type: LogAppended, SessionKey: "task-2"})

	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("Subscriber for task-1 received event for task-2")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	defer unsub()

	bus.PublishSync(Event{Type: SessionStarted, SessionKey: "a"})
	bus.PublishSync(Event{Type: LogAppended, SessionKey: "b"})
	bus.PublishSync(Event{Type: SessionCompleted, SessionKey: "c"})

	if got := atomic.LoadInt32(&count); got != 3 {
		t.Errorf("Expected 3 events, got %d", got)
	}
}

func TestBus_PublishPreservesOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	const n = 50
	seen := make(chan int, n)
	unsub := bus.Subscribe("task-1", func(e Event) {
		seen <- e.Data.(int)
	})
	defer unsub()

	for i := 0; i < n; i++ {
		bus.Publish(Event{Type: LogAppended, SessionKey: "task-1", Data: i})
	}

	for want := 0; want < n; want++ {
		select {
		case got := <-seen:
			if got != want {
				t.Fatalf("Event %d delivered out of order (got %d)", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for event %d", want)
		}
	}
}

func TestBus_SyncAndAsyncPublishesDoNotReorder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	seen := make(chan int, 3)
	unsub := bus.Subscribe("task-1", func(e Event) {
		seen <- e.Data.(int)
	})
	defer unsub()

	bus.Publish(Event{Type: LogAppended, SessionKey: "task-1", Data: 0})
	bus.PublishSync(Event{Type: LogAppended, SessionKey: "task-1", Data: 1})
	bus.Publish(Event{Type: LogAppended, SessionKey: "task-1", Data: 2})

	for want := 0; want < 3; want++ {
		select {
		case got := <-seen:
			if got != want {
				t.Fatalf("Event %d delivered out of order (got %d)", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for event %d", want)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe("task-1", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.PublishSync(Event{Type: LogAppended, SessionKey: "task-1"})
	unsub()
	bus.PublishSync(Event{Type: LogAppended, SessionKey: "task-1"})

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Errorf("Expected 1 event after unsubscribe, got %d", got)
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()

	var count int32
	bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.Close()
	bus.PublishSync(Event{Type: LogAppended, SessionKey: "task-1"})

	if atomic.LoadInt32(&count) != 0 {
		t.Error("Event delivered after Close")
	}
}

func TestBus_WatermillBridge(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgs, err := bus.PubSub().Subscribe(ctx, Topic)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.PublishSync(Event{Type: SessionCompleted, SessionKey: "task-9"})

	select {
	case msg := <-msgs:
		if got := msg.Metadata.Get("type"); got != string(SessionCompleted) {
			t.Errorf("Expected type metadata %q, got %q", SessionCompleted, got)
		}
		if got := msg.Metadata.Get("key"); got != "task-9" {
			t.Errorf("Expected key metadata task-9, got %q", got)
		}
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("Timed out waiting for bridged message")
	}
}
