package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// UnitLifecyclePayload is the payload carried by every unit-lifecycle event
// (unit.created, unit.updated, plan.approved, plan.rejected): a snapshot of
// the record fields a subscriber needs without re-fetching from the Store.
type UnitLifecyclePayload struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	ParentID string `json:"parent_id,omitempty"`
}

// EventType satisfies EventPayload with the default of the four lifecycle
// events this payload can carry; NewTypedEventAs overrides it per call since
// one payload shape spans EventUnitCreated/Updated/EventPlanApproved/Rejected.
func (UnitLifecyclePayload) EventType() EventType { return EventUnitUpdated }

// NewTypedEvent creates a new event, deriving its EventType from the payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventAs creates a new event with an explicit EventType, for
// payload shapes (like UnitLifecyclePayload) shared across more than one
// event type.
func NewTypedEventAs(eventType EventType, source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes an event's payload map back into a typed T.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

// GetUnitLifecyclePayload extracts the UnitLifecyclePayload from e.
func GetUnitLifecyclePayload(e Event) (UnitLifecyclePayload, bool) {
	return ExtractPayload[UnitLifecyclePayload](e)
}
