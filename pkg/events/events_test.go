package events

import (
	"testing"
	"time"

	"github.com/wugren/buckyos/pkg/zonetypes"
)

func TestBrokerPublishDeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: TaskEventType(zonetypes.TaskSucceeded), TaskID: "t1"})

	select {
	case ev := <-sub:
		if ev.Type != EventTaskSucceeded {
			t.Fatalf("got %q, want %q", ev.Type, EventTaskSucceeded)
		}
		if ev.Timestamp.IsZero() {
			t.Fatalf("expected Publish to stamp a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", b.SubscriberCount())
	}
}
