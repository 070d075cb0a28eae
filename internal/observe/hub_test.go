package observe

import "testing"

func TestHubPublishesInSubscriptionOrder(t *testing.T) {
	var h Hub[int]
	var got []string

	h.Subscribe(func(v int) { got = append(got, "first") })
	h.Subscribe(func(v int) { got = append(got, "second") })

	h.Publish(1)

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected delivery order %v", got)
	}
}

func TestHubCancel(t *testing.T) {
	var h Hub[string]
	calls := 0
	cancel := h.Subscribe(func(string) { calls++ })

	h.Publish("a")
	cancel()
	cancel()
	h.Publish("b")

	if calls != 1 {
		t.Fatalf("expected 1 call got %d", calls)
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers got %d", h.Len())
	}
}

func TestHubSubscriberMayUnsubscribeDuringPublish(t *testing.T) {
	var h Hub[int]
	var cancel func()
	calls := 0
	cancel = h.Subscribe(func(int) {
		calls++
		cancel()
	})

	h.Publish(1)
	h.Publish(2)

	if calls != 1 {
		t.Fatalf("expected subscriber to run once got %d", calls)
	}
}

func TestHubNilSubscriber(t *testing.T) {
	var h Hub[int]
	h.Subscribe(nil)()
	if h.Len() != 0 {
		t.Fatal("expected nil subscriber to be ignored")
	}
}
