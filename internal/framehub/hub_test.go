package framehub

import (
	"testing"
	"time"
)

func TestSubscriberReceivesPublishedFrame(t *testing.T) {
	t.Parallel()

	hub := New()
	read, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish([]byte("jpeg-1"))
	frame := read()
	if frame == nil || string(frame.Data) != "jpeg-1" || frame.Seq != 1 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestSlowSubscriberSeesOnlyLatest(t *testing.T) {
	t.Parallel()

	hub := New()
	read, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish([]byte("a"))
	hub.Publish([]byte("b"))
	hub.Publish([]byte("c"))

	frame := read()
	if string(frame.Data) != "c" || frame.Seq != 3 {
		t.Fatalf("expected latest frame, got %+v", frame)
	}
	if stats := hub.Stats(); stats.Drops != 2 || stats.Published != 3 || stats.Subscribers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestLateSubscriberGetsLatestFrame(t *testing.T) {
	t.Parallel()

	hub := New()
	hub.Publish([]byte("first"))

	read, cancel := hub.Subscribe()
	defer cancel()
	if frame := read(); frame == nil || string(frame.Data) != "first" {
		t.Fatalf("expected latest frame on subscribe, got %+v", frame)
	}

	hub.Reset()
	if hub.Latest() != nil {
		t.Fatalf("reset must forget the latest frame")
	}
}

func TestCancelUnblocksReader(t *testing.T) {
	t.Parallel()

	hub := New()
	read, cancel := hub.Subscribe()

	got := make(chan *Frame, 1)
	go func() { got <- read() }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	cancel()

	select {
	case frame := <-got:
		if frame != nil {
			t.Fatalf("expected nil after cancel, got %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatalf("reader was not woken by cancel")
	}
	if hub.Stats().Subscribers != 0 {
		t.Fatalf("cancel must unregister the subscriber")
	}
}

func TestCloseWakesReadersAndRejectsPublish(t *testing.T) {
	t.Parallel()

	hub := New()
	read, _ := hub.Subscribe()

	got := make(chan *Frame, 1)
	go func() { got <- read() }()

	time.Sleep(10 * time.Millisecond)
	hub.Close()

	select {
	case frame := <-got:
		if frame != nil {
			t.Fatalf("expected nil after close")
		}
	case <-time.After(time.Second):
		t.Fatalf("reader was not woken by close")
	}

	hub.Publish([]byte("late"))
	if hub.Latest() != nil {
		t.Fatalf("publish after close must be ignored")
	}
	lateRead, _ := hub.Subscribe()
	if lateRead() != nil {
		t.Fatalf("subscribe after close must return a closed reader")
	}
}
