package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
)

const (
	// DefaultMaxConnectionsPerUser caps concurrent streams per caller.
	DefaultMaxConnectionsPerUser = 3

	// subscriptionBuffer is the per-subscriber in-memory event queue. A
	// subscriber that stays full is treated as dead and pruned.
	subscriptionBuffer = 32
)

// Event is one structured payload pushed to subscribers.
type Event struct {
	Type      string                 `json:"eventType"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Subscription is an opaque handle to one live streaming connection. Only
// the receive channel is exposed; all mutation goes through the Manager.
type Subscription struct {
	executionID uuid.UUID
	userID      uuid.UUID
	ch          chan Event
	closed      bool
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) ExecutionID() uuid.UUID {
	return s.executionID
}

// Manager holds the live subscriber set per execution and fans events out
// to them. It is the only structure shared between ingestion, human-action
// flows and viewer connections, so every access is mutex-guarded.
type Manager struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]map[*Subscription]struct{}
	userCounts  map[uuid.UUID]int
	maxPerUser  int
	log         *logrus.Logger
}

func NewManager(maxPerUser int, log *logrus.Logger) *Manager {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxConnectionsPerUser
	}
	return &Manager{
		subscribers: make(map[uuid.UUID]map[*Subscription]struct{}),
		userCounts:  make(map[uuid.UUID]int),
		maxPerUser:  maxPerUser,
		log:         log,
	}
}

// Subscribe registers a new streaming connection for an execution. Callers
// at their connection cap are rejected with ErrTooManyConnections.
func (m *Manager) Subscribe(executionID, userID uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userCounts[userID] >= m.maxPerUser {
		return nil, fmt.Errorf("user %s has %d active streams: %w", userID, m.userCounts[userID], models.ErrTooManyConnections)
	}

	sub := &Subscription{
		executionID: executionID,
		userID:      userID,
		ch:          make(chan Event, subscriptionBuffer),
	}

	set, ok := m.subscribers[executionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		m.subscribers[executionID] = set
	}
	set[sub] = struct{}{}
	m.userCounts[userID]++

	m.log.WithFields(logrus.Fields{
		"execution_id": executionID,
		"user_id":      userID,
		"connections":  len(set),
	}).Info("Stream subscribed")

	return sub, nil
}

// Unsubscribe removes a subscription and frees the caller's slot. Safe to
// call more than once; later calls are no-ops.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(sub)
}

// Broadcast delivers an event to every live subscriber of the execution.
// A subscriber whose queue is full is pruned as dead; the rest are
// unaffected. Broadcasting to an execution with no subscribers is a no-op.
func (m *Manager) Broadcast(executionID uuid.UUID, eventType string, data map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subscribers[executionID]
	if !ok {
		return
	}

	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	var dead []*Subscription
	for sub := range set {
		select {
		case sub.ch <- event:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		m.log.WithFields(logrus.Fields{
			"execution_id": executionID,
			"user_id":      sub.userID,
		}).Warn("Pruning unresponsive stream subscriber")
		m.removeLocked(sub)
	}
}

// Heartbeat pushes a keepalive event onto one subscriber's queue so idle
// connections are not dropped by intermediaries.
func (m *Manager) Heartbeat(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub == nil || sub.closed {
		return
	}
	event := Event{
		Type:      "heartbeat",
		Data:      map[string]interface{}{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		Timestamp: time.Now().UTC(),
	}
	select {
	case sub.ch <- event:
	default:
	}
}

func (m *Manager) ConnectionCount(executionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers[executionID])
}

func (m *Manager) UserConnectionCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCounts[userID]
}

// removeLocked must be called with m.mu held.
func (m *Manager) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)

	if set, ok := m.subscribers[sub.executionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.subscribers, sub.executionID)
		}
	}

	m.userCounts[sub.userID]--
	if m.userCounts[sub.userID] <= 0 {
		delete(m.userCounts, sub.userID)
	}

	m.log.WithFields(logrus.Fields{
		"execution_id": sub.executionID,
		"user_id":      sub.userID,
	}).Info("Stream unsubscribed")
}
