package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	b.Publish(Event{Kind: ConversationUpdated, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != ConversationUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, ConversationUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: ChannelStatusChanged})
	b.Publish(Event{Kind: MessageAppended})

	select {
	case evt := <-ch:
		if evt.Kind != MessageAppended {
			t.Errorf("got kind %q, want %s", evt.Kind, MessageAppended)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyNamespaceMatchesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Publish(Event{Kind: ComposeChanged})
	b.Publish(Event{Kind: ChannelStatusChanged})

	for _, want := range []string{ComposeChanged, ChannelStatusChanged} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: MessageSent})

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 4)
	b.Close()
	b.Close()
	unsub()

	b.Publish(Event{Kind: MessageSent})
	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}

	late, _ := b.Subscribe("", 1)
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}
