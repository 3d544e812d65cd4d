package chat

import "testing"

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("a1")
	defer cancel()

	hub.Publish(Event{Type: "delta", AnalysisID: "a1", Text: "x"})
	select {
	case evt := <-events:
		if evt.Text != "x" {
			t.Fatalf("unexpected event %+v", evt)
		}
	default:
		t.Fatalf("expected buffered event")
	}
}

func TestHubScopesByAnalysis(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("a1")
	defer cancel()

	hub.Publish(Event{Type: "delta", AnalysisID: "other"})
	if len(events) != 0 {
		t.Fatalf("expected no cross-analysis delivery")
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("a1")
	cancel()

	hub.Publish(Event{Type: "delta", AnalysisID: "a1"})
	if len(events) != 0 {
		t.Fatalf("expected no delivery after cancel")
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("a1")
	defer cancel()

	// Publish must never block, even past the subscriber buffer.
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(Event{Type: "delta", AnalysisID: "a1"})
	}
	if len(events) != subscriberBuffer {
		t.Fatalf("expected buffer capped at %d, got %d", subscriberBuffer, len(events))
	}
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	first, cancelFirst := hub.Subscribe("a1")
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe("a1")
	defer cancelSecond()

	hub.Publish(Event{Type: "final", AnalysisID: "a1"})
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected fan-out to both subscribers, got %d/%d", len(first), len(second))
	}
}
