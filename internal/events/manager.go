package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscribers
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes typed event data and logs it
func (m *Manager) Emit(module string, data EventData) {
	event := m.bus.Publish(module, data)

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to encode event for logging")
		return
	}
	m.log.Info().
		Str("event_type", string(event.Type)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(module, &ErrorEventData{Error: err.Error(), Context: context})
}
