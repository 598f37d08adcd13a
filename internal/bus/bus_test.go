package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-utility/dipper/internal/domain"
)

func auditPayload(t *testing.T, nomen, status string) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.AuditRecord{
		ID:     "audit-bus-" + nomen,
		Nomen:  nomen,
		Status: status,
		Remark: "bus delivery check",
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return payload
}

func TestChannelBus(t *testing.T) {
	ctx := context.Background()
	tenantID := "branch-pusat"

	t.Run("DeliversAuditSubmissions", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		var receivedMsg *domain.Message

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, tenantID, domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			receivedMsg = msg
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		// Allow subscription to be active
		time.Sleep(10 * time.Millisecond)

		err = bus.Publish(ctx, tenantID, domain.TopicAuditSubmitted, auditPayload(t, "10002341", domain.StatusFraud))
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			// Success
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}

		var rec domain.AuditRecord
		if err := json.Unmarshal(receivedMsg.Payload, &rec); err != nil {
			t.Fatalf("payload is not an audit record: %v", err)
		}
		if rec.Nomen != "10002341" || rec.Status != domain.StatusFraud {
			t.Errorf("unexpected record %s/%s", rec.Nomen, rec.Status)
		}
		if receivedMsg.TenantID != tenantID {
			t.Errorf("expected tenantID '%s', got '%s'", tenantID, receivedMsg.TenantID)
		}
		if receivedMsg.Topic != domain.TopicAuditSubmitted {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicAuditSubmitted, receivedMsg.Topic)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		var received1 atomic.Int32
		var received2 atomic.Int32

		bus.Subscribe(ctx, "branch-pusat", domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			return nil
		})

		bus.Subscribe(ctx, "branch-timur", domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, "branch-pusat", domain.TopicAuditSubmitted, auditPayload(t, "10002341", domain.StatusValid))
		time.Sleep(50 * time.Millisecond)

		if received1.Load() != 1 {
			t.Errorf("branch-pusat should receive 1 message, got %d", received1.Load())
		}
		if received2.Load() != 0 {
			t.Errorf("branch-timur should receive 0 messages, got %d", received2.Load())
		}
	})

	t.Run("WildcardSubscriberSeesAllBranches", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		var wildcard atomic.Int32
		var scoped atomic.Int32

		bus.Subscribe(ctx, domain.TenantWildcard, domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			wildcard.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "branch-pusat", domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			scoped.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, "branch-pusat", domain.TopicAuditSubmitted, auditPayload(t, "10002341", domain.StatusRecheck))
		bus.Publish(ctx, "branch-timur", domain.TopicAuditSubmitted, auditPayload(t, "10007755", domain.StatusRecheck))
		time.Sleep(50 * time.Millisecond)

		if wildcard.Load() != 2 {
			t.Errorf("wildcard subscriber should receive both branches, got %d", wildcard.Load())
		}
		if scoped.Load() != 1 {
			t.Errorf("scoped subscriber should receive only its branch, got %d", scoped.Load())
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		err := bus.Publish(ctx, "", domain.TopicAuditSubmitted, []byte("data"))
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = bus.Subscribe(ctx, "", domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, tenantID, domain.TopicAnomalySelected, func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, tenantID, domain.TopicAnomalySelected, []byte(`{"nomen":"10002341"}`))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()
		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, tenantID, domain.TopicAnomalySelected, []byte(`{"nomen":"10007755"}`))
		time.Sleep(50 * time.Millisecond)

		// Should still be 1 after unsubscribe
		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		var count1, count2 atomic.Int32

		bus.Subscribe(ctx, tenantID, domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})

		bus.Subscribe(ctx, tenantID, domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, tenantID, domain.TopicAuditSubmitted, auditPayload(t, "10013190", domain.StatusEstimated))
		time.Sleep(50 * time.Millisecond)

		if count1.Load() != 1 || count2.Load() != 1 {
			t.Errorf("expected both subscribers to receive, got %d and %d", count1.Load(), count2.Load())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		bus := NewChannelBus(100)
		defer bus.Close()

		sub, _ := bus.Subscribe(ctx, tenantID, domain.TopicSessionCleared, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})

		if sub.Topic() != domain.TopicSessionCleared {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicSessionCleared, sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()
	tenantID := "branch-pusat"

	bus.Subscribe(ctx, tenantID, domain.TopicSessionCleared, func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	// Operations should fail after close
	if err := bus.Publish(ctx, tenantID, domain.TopicSessionCleared, []byte("data")); err == nil {
		t.Error("expected error after close")
	}

	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 50,
		}

		bus, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		_, ok := bus.(*ChannelBus)
		if !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type: "kafka",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "branch-load"

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, tenantID, domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	time.Sleep(10 * time.Millisecond)

	// Publish many messages
	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, tenantID, domain.TopicAuditSubmitted, auditPayload(t, "10002341", domain.StatusValid))
	}

	// Wait for all messages
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}

func TestNATSSubjects(t *testing.T) {
	b := &NATSBus{}

	if got := b.makeSubject("branch-pusat", domain.TopicAuditSubmitted); got != "dipper.branch-pusat.dipper.audit.submitted" {
		t.Errorf("unexpected tenant subject: %s", got)
	}
	if got := b.makeSubject(domain.TenantWildcard, domain.TopicAuditSubmitted); got != "dipper.*.dipper.audit.submitted" {
		t.Errorf("unexpected wildcard subject: %s", got)
	}
}
