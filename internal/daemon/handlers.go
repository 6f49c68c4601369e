package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/loopr-dev/loopr/internal/events"
	"github.com/loopr-dev/loopr/internal/manager"
	"github.com/loopr-dev/loopr/internal/signalbus"
	"github.com/loopr-dev/loopr/internal/spawn"
	"github.com/loopr-dev/loopr/internal/store"
)

const defaultPlanMaxIterations = 10

// Handler dispatches IPC request Frames against a Store and Manager,
// publishing unit/plan lifecycle events to bus as a side effect. One
// Handler is shared by every connection Server accepts.
type Handler struct {
	Store   *store.Store
	Manager *manager.Manager
	Bus     *events.Bus

	// PlanMaxIterations resolves the default iteration budget for a
	// newly created plan, typically config.Resolve(...).MaxIterations
	// for store.KindPlan, wired by cmd/loopr. Nil or non-positive falls
	// back to defaultPlanMaxIterations.
	PlanMaxIterations func() int
}

// Dispatch routes one request Frame to its handler and returns the
// payload to embed in the response, or an IpcError on failure.
func (h *Handler) Dispatch(f Frame) (any, *IpcError) {
	switch Method(f.Method) {
	case MethodListUnits:
		return h.listUnits(f.Params)
	case MethodGetUnit:
		return h.getUnit(f.Params)
	case MethodCreatePlan:
		return h.createPlan(f.Params)
	case MethodStartUnit:
		return h.startUnit(f.Params)
	case MethodPauseUnit:
		return h.controlUnit(f.Params, signalbus.Pause)
	case MethodResumeUnit:
		return h.controlUnit(f.Params, signalbus.Resume)
	case MethodCancelUnit:
		return h.controlUnit(f.Params, signalbus.Stop)
	case MethodDeleteUnit:
		// Delete maps to Invalidate; there is no hard delete, per spec.md §4.9.
		return h.controlUnit(f.Params, signalbus.Invalidate)
	case MethodApprovePlan:
		return h.approvePlan(f.Params)
	case MethodRejectPlan:
		return h.rejectPlan(f.Params)
	case MethodIteratePlan:
		return h.iteratePlan(f.Params)
	case MethodPreviewPlan:
		return h.previewPlan(f.Params)
	default:
		return nil, newError(ErrInvalidParams, "unknown method %q", f.Method)
	}
}

type unitFilterParams struct {
	Kind     string `json:"kind,omitempty"`
	Status   string `json:"status,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

func (h *Handler) listUnits(raw json.RawMessage) (any, *IpcError) {
	var p unitFilterParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, newError(ErrInvalidParams, "invalid params: %v", err)
		}
	}
	f := store.Filter{}
	if p.Kind != "" {
		f.Kind = store.Kind(p.Kind)
		f.KindSet = true
	}
	if p.Status != "" {
		f.Status = store.Status(p.Status)
		f.StatusSet = true
	}
	if p.ParentID != "" {
		f.ParentID = p.ParentID
		f.ParentSet = true
	}
	return h.Store.List(f), nil
}

type idParams struct {
	ID string `json:"id"`
}

func (h *Handler) getUnit(raw json.RawMessage) (any, *IpcError) {
	var p idParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, newError(ErrInvalidParams, "id is required")
	}
	rec, err := h.Store.Get(p.ID)
	if err != nil {
		return nil, newError(ErrNotFound, "unit %s not found", p.ID)
	}
	return rec, nil
}

type createPlanParams struct {
	TaskDescription string `json:"task_description"`
	MaxIterations   int    `json:"max_iterations,omitempty"`
}

func (h *Handler) createPlan(raw json.RawMessage) (any, *IpcError) {
	var p createPlanParams
	if err := json.Unmarshal(raw, &p); err != nil || p.TaskDescription == "" {
		return nil, newError(ErrInvalidParams, "task_description is required")
	}
	maxIter := p.MaxIterations
	if maxIter <= 0 && h.PlanMaxIterations != nil {
		maxIter = h.PlanMaxIterations()
	}
	if maxIter <= 0 {
		maxIter = defaultPlanMaxIterations
	}
	rec := store.NewPlan(p.TaskDescription, maxIter)
	if err := h.Manager.Submit(rec); err != nil {
		return nil, newError(ErrInternal, "create plan: %v", err)
	}
	h.publishUnit(events.EventUnitCreated, rec)
	return rec, nil
}

// startUnit nudges the tick loop to reconsider a freshly-created, still
// Pending record immediately rather than waiting for the next tick.
// Already-running or terminal records are rejected.
func (h *Handler) startUnit(raw json.RawMessage) (any, *IpcError) {
	var p idParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, newError(ErrInvalidParams, "id is required")
	}
	rec, err := h.Store.Get(p.ID)
	if err != nil {
		return nil, newError(ErrNotFound, "unit %s not found", p.ID)
	}
	if !rec.Status.CanStart() {
		return nil, newError(ErrInvalidState, "unit %s is %s, not startable", p.ID, rec.Status)
	}
	h.Manager.Wake()
	return rec, nil
}

func (h *Handler) controlUnit(raw json.RawMessage, verb signalbus.Verb) (any, *IpcError) {
	var p idParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, newError(ErrInvalidParams, "id is required")
	}
	if err := h.Manager.RequestControl(p.ID, verb); err != nil {
		return nil, newError(ErrInvalidState, "%v", err)
	}
	rec, err := h.Store.Get(p.ID)
	if err != nil {
		return nil, newError(ErrNotFound, "unit %s not found", p.ID)
	}
	h.publishUnit(events.EventUnitUpdated, rec)
	return rec, nil
}

func (h *Handler) approvePlan(raw json.RawMessage) (any, *IpcError) {
	var p idParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, newError(ErrInvalidParams, "id is required")
	}
	if err := h.Manager.ApprovePlan(p.ID); err != nil {
		return nil, newError(ErrInvalidState, "%v", err)
	}
	rec, err := h.Store.Get(p.ID)
	if err != nil {
		return nil, newError(ErrNotFound, "unit %s not found", p.ID)
	}
	h.publishUnit(events.EventPlanApproved, rec)
	return rec, nil
}

type rejectPlanParams struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (h *Handler) rejectPlan(raw json.RawMessage) (any, *IpcError) {
	var p rejectPlanParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, newError(ErrInvalidParams, "id is required")
	}
	rec, err := h.Store.Get(p.ID)
	if err != nil {
		return nil, newError(ErrNotFound, "unit %s not found", p.ID)
	}
	if rec.Kind != store.KindPlan {
		return nil, newError(ErrInvalidParams, "%s is not a plan", p.ID)
	}
	rec, err = h.Store.Mutate(p.ID, func(r *store.Record) error {
		if r.Context == nil {
			r.Context = make(map[string]string)
		}
		r.Context["reject_reason"] = p.Reason
		return nil
	})
	if err != nil {
		return nil, newError(ErrInternal, "reject plan: %v", err)
	}
	h.publishUnit(events.EventPlanRejected, rec)
	return rec, nil
}

type iteratePlanParams struct {
	ID       string `json:"id"`
	Feedback string `json:"feedback"`
}

func (h *Handler) iteratePlan(raw json.RawMessage) (any, *IpcError) {
	var p iteratePlanParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, newError(ErrInvalidParams, "id is required")
	}
	if err := h.Manager.IteratePlan(p.ID, p.Feedback); err != nil {
		return nil, newError(ErrInvalidState, "%v", err)
	}
	rec, err := h.Store.Get(p.ID)
	if err != nil {
		return nil, newError(ErrNotFound, "unit %s not found", p.ID)
	}
	h.publishUnit(events.EventUnitUpdated, rec)
	return rec, nil
}

type previewPlanResult struct {
	Artifact string       `json:"artifact"`
	Steps    []spawn.Step `json:"steps"`
}

func (h *Handler) previewPlan(raw json.RawMessage) (any, *IpcError) {
	var p idParams
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, newError(ErrInvalidParams, "id is required")
	}
	artifact, steps, err := h.Manager.PreviewPlan(p.ID)
	if err != nil {
		return nil, newError(ErrInvalidParams, "%v", err)
	}
	return previewPlanResult{Artifact: artifact, Steps: steps}, nil
}

func (h *Handler) publishUnit(eventType events.EventType, rec *store.Record) {
	if h.Bus == nil {
		return
	}
	h.Bus.Publish(events.NewTypedEventAs(eventType, events.SourceDaemon, events.UnitLifecyclePayload{
		ID:       rec.ID,
		Kind:     fmt.Sprint(rec.Kind),
		Status:   fmt.Sprint(rec.Status),
		ParentID: rec.ParentID,
	}))
}
