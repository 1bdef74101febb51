package sse

import (
	"testing"
)

func TestHubPublish(t *testing.T) {
	hub := NewHub()
	a, unsubA := hub.Subscribe()
	b, unsubB := hub.Subscribe()
	defer unsubB()

	if err := hub.Publish("created", map[string]int64{"id": 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := "event: created\ndata: {\"id\":7}\n\n"
	for name, ch := range map[string]chan []byte{"a": a, "b": b} {
		select {
		case got := <-ch:
			if string(got) != want {
				t.Errorf("%s got %q, want %q", name, got, want)
			}
		default:
			t.Errorf("%s received nothing", name)
		}
	}

	unsubA()
	unsubA()
	if n := hub.Subscribers(); n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
	if _, ok := <-a; ok {
		t.Error("channel still open after unsubscribe")
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for i := 0; i < cap(ch)+5; i++ {
		hub.Broadcast([]byte("x"))
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want %d", len(ch), cap(ch))
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := Encode("bad", make(chan int)); err == nil {
		t.Error("expected error for a channel payload")
	}
}
