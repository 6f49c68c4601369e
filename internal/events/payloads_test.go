package events

import "testing"

func TestTypedEventUnitCreated(t *testing.T) {
	payload := UnitLifecyclePayload{ID: "lr_1", Kind: "plan", Status: "pending"}
	evt := NewTypedEventAs(EventUnitCreated, SourceDaemon, payload)

	if evt.Type != EventUnitCreated {
		t.Fatalf("expected type %q, got %q", EventUnitCreated, evt.Type)
	}
	got, ok := ExtractPayload[UnitLifecyclePayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.ID != "lr_1" || got.Kind != "plan" || got.Status != "pending" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestTypedEventSharedPayloadAcrossLifecycleTypes(t *testing.T) {
	payload := UnitLifecyclePayload{ID: "lr_2", Kind: "spec", Status: "complete", ParentID: "lr_1"}

	cases := []EventType{EventUnitCreated, EventUnitUpdated, EventPlanApproved, EventPlanRejected}
	for _, want := range cases {
		evt := NewTypedEventAs(want, SourceDaemon, payload)
		if evt.Type != want {
			t.Errorf("expected type %q, got %q", want, evt.Type)
		}
		got, ok := GetUnitLifecyclePayload(evt)
		if !ok {
			t.Fatalf("GetUnitLifecyclePayload returned false for %q", want)
		}
		if got.ParentID != "lr_1" {
			t.Errorf("%q: expected parent_id lr_1, got %q", want, got.ParentID)
		}
	}
}

func TestExtractPayloadWrongTypeYieldsZeroValues(t *testing.T) {
	evt := Event{Type: EventUnitCreated, Source: SourceDaemon, Payload: map[string]any{"id": "lr_1"}}

	got, ok := ExtractPayload[UnitLifecyclePayload](evt)
	if !ok {
		t.Fatal("ExtractPayload should succeed even with a partial payload map")
	}
	if got.Kind != "" {
		t.Fatalf("expected empty kind for missing field, got %q", got.Kind)
	}
}
