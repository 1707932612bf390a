package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler receives published events
type Handler func(Event)

// Manager handles event emission and logging
type Manager struct {
	log zerolog.Logger

	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id int
	h  Handler
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a handler for every subsequently emitted event.
// The returned function removes it again.
func (m *Manager) Subscribe(h Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, subscription{id: id, h: h})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.handlers {
			if sub.id == id {
				m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
				return
			}
		}
	}
}

// Emit logs a ledger change and delivers it to subscribers synchronously
func (m *Manager) Emit(symbol, message string, data EventData) Event {
	event := Event{
		ID:         uuid.New().String(),
		Type:       data.EventType(),
		Priority:   PriorityLow,
		UserID:     ownerOf(data),
		Symbol:     symbol,
		Message:    message,
		Data:       data,
		DetectedAt: time.Now(),
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to encode event")
	} else {
		m.log.Info().
			Str("event_type", string(event.Type)).
			RawJSON("event", eventJSON).
			Msg("Event emitted")
	}

	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.handlers))
	for _, sub := range m.handlers {
		handlers = append(handlers, sub.h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return event
}

func ownerOf(data EventData) string {
	switch d := data.(type) {
	case *CashMovementData:
		return d.UserID
	case *TradeData:
		return d.UserID
	case *ManualPriceData:
		return d.UserID
	}
	return ""
}
