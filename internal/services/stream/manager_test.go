package stream

import (
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
)

func newTestManager(maxPerUser int) *Manager {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewManager(maxPerUser, log)
}

func TestSubscribeEnforcesPerUserCap(t *testing.T) {
	m := newTestManager(3)
	executionID := uuid.New()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := m.Subscribe(executionID, userID); err != nil {
			t.Fatalf("subscribe %d: unexpected error %v", i, err)
		}
	}

	_, err := m.Subscribe(executionID, userID)
	if !errors.Is(err, models.ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}

	// Another user is not affected by the first user's cap.
	if _, err := m.Subscribe(executionID, uuid.New()); err != nil {
		t.Fatalf("other user should subscribe: %v", err)
	}
}

func TestUnsubscribeFreesSlot(t *testing.T) {
	m := newTestManager(1)
	executionID := uuid.New()
	userID := uuid.New()

	sub, err := m.Subscribe(executionID, userID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := m.Subscribe(executionID, userID); !errors.Is(err, models.ErrTooManyConnections) {
		t.Fatalf("expected cap error, got %v", err)
	}

	m.Unsubscribe(sub)
	if got := m.UserConnectionCount(userID); got != 0 {
		t.Fatalf("expected 0 connections after unsubscribe, got %d", got)
	}
	if _, err := m.Subscribe(executionID, userID); err != nil {
		t.Fatalf("slot should be free again: %v", err)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	m := newTestManager(3)
	sub, err := m.Subscribe(uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.Unsubscribe(sub)
	m.Unsubscribe(sub)
	m.Unsubscribe(nil)
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	m := newTestManager(3)
	executionID := uuid.New()

	first, _ := m.Subscribe(executionID, uuid.New())
	second, _ := m.Subscribe(executionID, uuid.New())

	m.Broadcast(executionID, "message", map[string]interface{}{"content": "hello"})

	for name, sub := range map[string]*Subscription{"first": first, "second": second} {
		select {
		case event := <-sub.Events():
			if event.Type != "message" {
				t.Fatalf("%s: expected message event, got %s", name, event.Type)
			}
			if event.Data["content"] != "hello" {
				t.Fatalf("%s: unexpected data %v", name, event.Data)
			}
		default:
			t.Fatalf("%s: no event delivered", name)
		}
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	m := newTestManager(3)
	m.Broadcast(uuid.New(), "message", nil)
}

func TestBroadcastPrunesFullSubscriber(t *testing.T) {
	m := newTestManager(3)
	executionID := uuid.New()

	stuck, _ := m.Subscribe(executionID, uuid.New())
	healthy, _ := m.Subscribe(executionID, uuid.New())

	// Fill the stuck subscriber's queue while keeping the healthy one
	// drained, until the full queue gets the stuck one pruned.
	for i := 0; i < subscriptionBuffer+1; i++ {
		m.Broadcast(executionID, "message", nil)
		select {
		case <-healthy.Events():
		default:
		}
	}

	if got := m.ConnectionCount(executionID); got != 1 {
		t.Fatalf("expected stuck subscriber pruned, connection count %d", got)
	}

	// Buffered events drain first, then the closed channel ends the range.
	for range stuck.Events() {
	}

	// Healthy subscriber keeps receiving.
	m.Broadcast(executionID, "status", nil)
	received := false
	for !received {
		select {
		case event := <-healthy.Events():
			received = event.Type == "status"
		default:
			t.Fatal("healthy subscriber did not receive the status event")
		}
	}
}

func TestHeartbeatPushesKeepalive(t *testing.T) {
	m := newTestManager(3)
	sub, _ := m.Subscribe(uuid.New(), uuid.New())

	m.Heartbeat(sub)

	select {
	case event := <-sub.Events():
		if event.Type != "heartbeat" {
			t.Fatalf("expected heartbeat, got %s", event.Type)
		}
	default:
		t.Fatal("no heartbeat delivered")
	}

	// Heartbeat after unsubscribe must not panic on the closed channel.
	m.Unsubscribe(sub)
	m.Heartbeat(sub)
}
