package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var received []*domain.Message

	_, err := b.Subscribe(ctx, "org-1", domain.TopicRuleUpdated, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(ctx, "org-1", domain.TopicRuleUpdated, []byte(`{"family":"X"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, "message never delivered")

	mu.Lock()
	defer mu.Unlock()
	if received[0].OrgID != "org-1" {
		t.Errorf("orgID = %s, want org-1", received[0].OrgID)
	}
	if received[0].Topic != domain.TopicRuleUpdated {
		t.Errorf("topic = %s", received[0].Topic)
	}
}

func TestChannelBusOrgIsolation(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0

	_, err := b.Subscribe(ctx, "org-1", domain.TopicRuleUpdated, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(ctx, "org-2", domain.TopicRuleUpdated, []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("org-1 subscriber received org-2's message")
	}
}

func TestChannelBusWildcard(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var orgs []string

	_, err := b.Subscribe(ctx, WildcardOrg, domain.TopicDecisionRecorded, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		orgs = append(orgs, msg.OrgID)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, org := range []string{"org-1", "org-2"} {
		if err := b.Publish(ctx, org, domain.TopicDecisionRecorded, []byte("x")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(orgs) == 2
	}, "wildcard subscriber missed messages")
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0

	sub, err := b.Subscribe(ctx, "org-1", domain.TopicRuleUpdated, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	if err := b.Publish(ctx, "org-1", domain.TopicRuleUpdated, []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Error("unsubscribed handler still received a message")
	}
}

func TestChannelBusRequiresOrg(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", "topic", nil); err == nil {
		t.Error("expected error publishing without org")
	}
	if _, err := b.Subscribe(ctx, "", "topic", nil); err == nil {
		t.Error("expected error subscribing without org")
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(16)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := b.Publish(context.Background(), "org-1", "topic", nil); err == nil {
		t.Error("expected error publishing to a closed bus")
	}
	if err := b.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail on a closed bus")
	}
}
