package events

import (
	"context"
	"sync"
	"time"

	"promo-attribution-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventDatasetIngested is emitted when the input tables are loaded
	EventDatasetIngested EventType = "dataset.ingested"
	// EventBuildCompleted is emitted when a feature build finishes
	EventBuildCompleted EventType = "build.completed"
	// EventFeaturesQueried is emitted when feature rows are served for a user
	EventFeaturesQueried EventType = "features.queried"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// DatasetIngestedData contains data for dataset ingested events.
type DatasetIngestedData struct {
	Summary models.IngestSummary
}

// BuildCompletedData contains data for build completed events.
type BuildCompletedData struct {
	Summary models.BuildSummary
}

// FeaturesQueriedData contains data for features queried events.
type FeaturesQueriedData struct {
	UserID    string
	QueriedAt time.Time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Execute handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				_ = err
			}
		}(handler)
	}
}

// PublishDatasetIngested publishes a dataset ingested event.
func (m *Manager) PublishDatasetIngested(ctx context.Context, summary models.IngestSummary) {
	m.Publish(ctx, EventDatasetIngested, DatasetIngestedData{Summary: summary})
}

// PublishBuildCompleted publishes a build completed event.
func (m *Manager) PublishBuildCompleted(ctx context.Context, summary models.BuildSummary) {
	m.Publish(ctx, EventBuildCompleted, BuildCompletedData{Summary: summary})
}

// PublishFeaturesQueried publishes a features queried event.
func (m *Manager) PublishFeaturesQueried(ctx context.Context, userID string) {
	m.Publish(ctx, EventFeaturesQueried, FeaturesQueriedData{
		UserID:    userID,
		QueriedAt: time.Now(),
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
