// Package models defines the domain types shared between the webhook
// handlers, the registrar and the pipeline driver.
package models

import "time"

// Status is the lifecycle state of a run event inside the store.
type Status string

const (
	StatusReceived   Status = "received"
	StatusInProgress Status = "in progress"
	StatusComplete   Status = "complete"
)

// InstructionRun is the only instruction value that triggers a
// pipeline run. Anything else falls through to the generic
// acknowledgment.
const InstructionRun = "run"

// EventType is the store-side event type every subscription is
// created with.
const EventType = "data_ingested"

// TriggerPayload is the body of an inbound store notification.
type TriggerPayload struct {
	ImportID string `json:"import_id"`
}

// Event is the payload of a store event record. It stays a map so
// fields this adapter does not know about survive the round trip back
// into the store. All lookups go through the accessor methods; none
// of them panics on a missing or mistyped key.
type Event map[string]any

// Instruction returns the event's instruction field, if present.
func (e Event) Instruction() (string, bool) {
	v, ok := e["instruction"].(string)
	return v, ok
}

// Status returns the event's status field, if present.
func (e Event) Status() (string, bool) {
	v, ok := e["status"].(string)
	return v, ok
}

// MarkInProgress transitions the event to "in progress" and stamps
// the bookkeeping fields the store expects on every mutation.
func (e Event) MarkInProgress(user string, now time.Time) {
	e["status"] = string(StatusInProgress)
	e["received"] = true
	e["modifiedDate"] = now.Format(time.RFC3339)
	e["modifiedUser"] = user
}

// MarkComplete transitions the event to "complete" and refreshes the
// modification timestamp.
func (e Event) MarkComplete(now time.Time) {
	e["status"] = string(StatusComplete)
	e["modifiedDate"] = now.Format(time.RFC3339)
}

// Clone returns a deep copy of the event. A run mutates its event from
// a background goroutine, so it must never share the map with the
// handler that answered the webhook.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}
	out := make(Event, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Ack is the generic acknowledgment body. The store must never see an
// error response for an event it sent, so malformed or irrelevant
// payloads are answered with this and a 200.
type Ack struct {
	Received bool `json:"received"`
}
