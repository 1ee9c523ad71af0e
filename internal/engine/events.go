package engine

import (
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// EventType labels a session stream event.
type EventType string

const (
	// EventTick carries the remaining seconds after a countdown tick.
	EventTick EventType = "tick"
	// EventProgress follows every answer mutation.
	EventProgress EventType = "progress"
	// EventSaved acknowledges a successful autosave cycle.
	EventSaved EventType = "saved"
	// EventGraded carries the result id of the completed attempt.
	EventGraded EventType = "graded"
)

// Event is pushed to stream subscribers as session state changes.
type Event struct {
	Type             EventType       `json:"event"`
	RemainingSeconds int             `json:"remaining_seconds,omitempty"`
	Progress         *model.Progress `json:"progress,omitempty"`
	ResultID         string          `json:"result_id,omitempty"`
}

const subscriberBuffer = 16

// Subscribe registers a stream consumer. The returned cancel func must be
// called when the consumer goes away. Events are dropped, never blocked on,
// when a consumer falls behind.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	if s.subscribers == nil {
		s.subscribers = make(map[int]chan Event)
	}
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

func (s *Session) broadcastLocked(ev Event) {
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(ev)
}

func (s *Session) closeSubscribersLocked() {
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
