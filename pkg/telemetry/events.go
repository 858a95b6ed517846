package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a progress notification emitted during a run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID.
	RunID string `json:"run_id,omitempty"`

	// Section is the associated section, if applicable.
	Section string `json:"section,omitempty"`

	// Item is the associated item, if applicable.
	Item string `json:"item,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types emitted by the engine.
const (
	EventTypeRunStarted       = "run.started"
	EventTypeRunCompleted     = "run.completed"
	EventTypeRunAborted       = "run.aborted"
	EventTypePhaseChanged     = "run.phase_changed"
	EventTypeSectionStarted   = "section.started"
	EventTypeSectionCompleted = "section.completed"
	EventTypeItemStarted      = "item.started"
	EventTypeItemCompleted    = "item.completed"
	EventTypeConfigChanged    = "config.changed"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers in publish order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{
		config:      cfg,
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
	}

	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.buffer != nil {
		ep.mu.RLock()
		defer ep.mu.RUnlock()
		if ep.closed {
			return fmt.Errorf("event publisher stopped")
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, policy string, sections int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started (%s, %d sections)", runID, policy, sections),
		Data: map[string]interface{}{
			"policy":   policy,
			"sections": sections,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, duration time.Duration) error {
	level := EventLevelInfo
	if status == "failed" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:   level,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunAborted publishes a run aborted event.
func (ep *EventPublisher) PublishRunAborted(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunAborted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s aborted: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishPhaseChanged publishes a run state machine transition.
func (ep *EventPublisher) PublishPhaseChanged(runID, from, to string) error {
	return ep.Publish(Event{
		Type:    EventTypePhaseChanged,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s: %s -> %s", runID, from, to),
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishSectionStarted publishes a section started event.
func (ep *EventPublisher) PublishSectionStarted(runID, section, backend string, items int) error {
	return ep.Publish(Event{
		Type:    EventTypeSectionStarted,
		RunID:   runID,
		Section: section,
		Message: fmt.Sprintf("Section %s started (%d items)", section, items),
		Data: map[string]interface{}{
			"backend": backend,
			"items":   items,
		},
	})
}

// PublishSectionCompleted publishes a section completed event.
func (ep *EventPublisher) PublishSectionCompleted(runID, section, status, reason string) error {
	level := EventLevelInfo
	switch status {
	case "failed":
		level = EventLevelError
	case "skipped_entirely", "not_attempted":
		level = EventLevelWarning
	}
	msg := fmt.Sprintf("Section %s %s", section, status)
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return ep.Publish(Event{
		Type:    EventTypeSectionCompleted,
		RunID:   runID,
		Section: section,
		Message: msg,
		Level:   level,
		Data: map[string]interface{}{
			"status": status,
			"reason": reason,
		},
	})
}

// PublishItemStarted publishes an item install started event.
func (ep *EventPublisher) PublishItemStarted(runID, section, item string) error {
	return ep.Publish(Event{
		Type:    EventTypeItemStarted,
		RunID:   runID,
		Section: section,
		Item:    item,
		Message: fmt.Sprintf("Installing %s", item),
	})
}

// PublishItemCompleted publishes an item outcome event.
func (ep *EventPublisher) PublishItemCompleted(runID, section, item, outcome, reason string) error {
	level := EventLevelInfo
	if outcome == "failed" {
		level = EventLevelError
	}
	msg := fmt.Sprintf("%s %s", item, outcome)
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return ep.Publish(Event{
		Type:    EventTypeItemCompleted,
		RunID:   runID,
		Section: section,
		Item:    item,
		Message: msg,
		Level:   level,
		Data: map[string]interface{}{
			"outcome": outcome,
			"reason":  reason,
		},
	})
}

// PublishConfigChanged publishes a configuration file change event.
func (ep *EventPublisher) PublishConfigChanged(path string) error {
	return ep.Publish(Event{
		Type:    EventTypeConfigChanged,
		Message: fmt.Sprintf("Configuration %s changed", path),
		Data: map[string]interface{}{
			"path": path,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents drains the buffer in async mode.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for event := range ep.buffer {
		ep.deliverEvent(event)
	}
}

// deliverEvent calls every matching subscriber. Subscribers are serialized so
// each sees events in publish order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains buffered events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || ep.buffer == nil {
		return nil
	}

	ep.mu.Lock()
	if !ep.closed {
		ep.closed = true
		close(ep.buffer)
	}
	ep.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
