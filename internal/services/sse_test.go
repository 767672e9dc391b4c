package services

import (
	"testing"
	"time"
)

func TestSSEHub_NewSSEHub(t *testing.T) {
	hub := NewSSEHub()
	if hub == nil {
		t.Fatal("NewSSEHub should not return nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("new hub should have 0 clients, got %d", hub.ClientCount())
	}
}

func TestSSEHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewSSEHub()

	hub.Subscribe("client1")
	ch2 := hub.Subscribe("client2")
	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client2")
	if _, open := <-ch2; open {
		t.Error("unsubscribed channel should be closed")
	}
	hub.Unsubscribe("nonexistent")
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}
}

func TestSSEHub_Publish(t *testing.T) {
	hub := NewSSEHub()
	ch1 := hub.Subscribe("client1")
	ch2 := hub.Subscribe("client2")

	score := 84
	hub.Publish(LedgerEvent{Type: EventAnalysisCompleted, ProjectID: 10, HealthScore: &score})

	for i, ch := range []<-chan LedgerEvent{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Type != EventAnalysisCompleted || got.ProjectID != 10 {
				t.Errorf("client%d: unexpected event %+v", i+1, got)
			}
			if got.HealthScore == nil || *got.HealthScore != 84 {
				t.Errorf("client%d: health score not carried", i+1)
			}
			if got.At.IsZero() {
				t.Errorf("client%d: timestamp not set", i+1)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client%d: timed out waiting for event", i+1)
		}
	}
}

func TestSSEHub_NonBlockingPublish(t *testing.T) {
	hub := NewSSEHub()
	hub.Subscribe("slow_client")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Publish(LedgerEvent{Type: EventFixOpened, PRNumber: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full client buffer")
	}
}

func TestGetSSEHub_Singleton(t *testing.T) {
	if GetSSEHub() != GetSSEHub() {
		t.Error("GetSSEHub should return the same instance")
	}
}
