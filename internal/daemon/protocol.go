// Package daemon serves Loopr's IPC surface: length-prefixed JSON frames
// over a Unix domain socket, plus /metrics and /healthz on a loopback HTTP
// port, per spec.md §6. Grounded on internal/gateway/ws/protocol.go's
// Frame/Method envelope and internal/gateway/server.go's chi-routed HTTP
// server, adapted from a WebSocket upgrade to a raw length-prefixed
// envelope (spec.md's literal wire contract) and from TCP to a Unix
// socket.
package daemon

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame's body so a corrupt or malicious
// length prefix can't make a read allocate unbounded memory.
const maxFrameSize = 16 << 20 // 16MiB

// FrameType identifies whether a Frame is a request, a response, or a
// server-pushed event.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method is an IPC request method name, per spec.md §6's required set.
type Method string

const (
	MethodListUnits   Method = "list_units"
	MethodGetUnit     Method = "get_unit"
	MethodCreatePlan  Method = "create_plan"
	MethodStartUnit   Method = "start_unit"
	MethodPauseUnit   Method = "pause_unit"
	MethodResumeUnit  Method = "resume_unit"
	MethodCancelUnit  Method = "cancel_unit"
	MethodDeleteUnit  Method = "delete_unit"
	MethodApprovePlan Method = "approve_plan"
	MethodRejectPlan  Method = "reject_plan"
	MethodIteratePlan Method = "iterate_plan"
	MethodPreviewPlan Method = "preview_plan"
)

// ErrorCode categorizes an IpcError, per spec.md §6.
type ErrorCode string

const (
	ErrInvalidParams ErrorCode = "invalid-params"
	ErrNotFound      ErrorCode = "not-found"
	ErrInvalidState  ErrorCode = "invalid-state"
	ErrInternal      ErrorCode = "internal"
)

// IpcError is the structured error shape returned in a failed response
// Frame's Error field.
type IpcError struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *IpcError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newError(code ErrorCode, format string, args ...any) *IpcError {
	return &IpcError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Frame is the IPC protocol envelope exchanged over the socket.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *IpcError       `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// newResponseFrame builds a successful or failed response Frame for
// request id.
func newResponseFrame(id string, payload any, ipcErr *IpcError) (Frame, error) {
	f := Frame{Type: FrameTypeResponse, ID: id, Error: ipcErr}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}

// newEventFrame builds an event Frame carrying payload.
func newEventFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: data}, nil
}

// writeFrame writes f to w as a 4-byte big-endian length prefix followed
// by its JSON encoding.
func writeFrame(w io.Writer, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("daemon: marshal frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("daemon: frame of %d bytes exceeds max %d", len(body), maxFrameSize)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// WriteFrame writes f to w as a length-prefixed frame. Exported for a thin
// IPC client (cmd/commands) dialing the same socket Server listens on,
// without duplicating the framing logic on the client side.
func WriteFrame(w io.Writer, f Frame) error { return writeFrame(w, f) }

// ReadFrame reads one length-prefixed frame from r. See WriteFrame.
func ReadFrame(r io.Reader) (Frame, error) { return readFrame(r) }

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return Frame{}, fmt.Errorf("daemon: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, fmt.Errorf("daemon: unmarshal frame: %w", err)
	}
	return f, nil
}
