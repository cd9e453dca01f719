package events

import (
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("NewBus() returned nil")
	}
	if bus.Events == nil {
		t.Fatal("Events channel is nil")
	}
}

func TestBus_SendReceive(t *testing.T) {
	bus := NewBus()

	go func() {
		bus.Publish(SessionChanged{State: "hosting", Status: "Hosting game"})
	}()

	select {
	case received := <-bus.Events:
		ev, ok := received.(SessionChanged)
		if !ok {
			t.Fatalf("received %T, want SessionChanged", received)
		}
		if ev.State != "hosting" {
			t.Errorf("received State = %q, want %q", ev.State, "hosting")
		}
		if received.Topic() != TopicSession {
			t.Errorf("Topic() = %q, want %q", received.Topic(), TopicSession)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus()

	for i := 0; i < busSize; i++ {
		if !bus.Publish(Feedback{Cue: CueCheckpoint}) {
			t.Fatalf("Publish %d dropped before the buffer was full", i)
		}
	}
	if bus.Publish(Feedback{Cue: CueDeath}) {
		t.Error("Publish on a full bus should drop")
	}
	if bus.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", bus.Dropped())
	}

	for i := 0; i < busSize; i++ {
		<-bus.Events
	}
}

func TestBus_CloseTwice(t *testing.T) {
	bus := NewBus()
	bus.Close()
	bus.Close()
	if _, ok := <-bus.Events; ok {
		t.Error("Events should be closed")
	}
}

func TestTopics(t *testing.T) {
	cases := map[Topic]Event{
		TopicSession:  SessionChanged{},
		TopicState:    StateChanged{},
		TopicRoster:   RosterChanged{},
		TopicFeedback: Feedback{},
		TopicChat:     ChatReceived{},
		TopicFatal:    Fatal{},
	}
	for want, ev := range cases {
		if ev.Topic() != want {
			t.Errorf("%T.Topic() = %q, want %q", ev, ev.Topic(), want)
		}
	}
}
