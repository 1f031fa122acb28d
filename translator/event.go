package translator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is anything that flows through the host application's event bus.
type Event interface {
	Type() string
}

// ErrorCarrier is implemented by failure events that carry an opaque payload
// for the operations they fail.
type ErrorCarrier interface {
	ViewStateError() any
}

// Action is a minimal event implementation.
type Action struct {
	Kind string
	Err  any
}

// Type returns the action type.
func (a Action) Type() string { return a.Kind }

// ViewStateError returns the error payload.
func (a Action) ViewStateError() any { return a.Err }

// Record is a generic event decoded from structured data. The "type" field is
// the event id and "error" carries the default error payload.
type Record map[string]any

// Field names recognised on records.
const (
	RecordTypeField  = "type"
	RecordErrorField = "error"
)

// ErrMissingType is returned when a record has no string type field.
var ErrMissingType = errors.New("event record requires a string \"type\" field")

// DecodeRecord parses a JSON object into a record.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode event record: %w", err)
	}
	if _, ok := rec[RecordTypeField].(string); !ok {
		return nil, ErrMissingType
	}
	return rec, nil
}

// Type returns the record type field.
func (r Record) Type() string {
	value, _ := r[RecordTypeField].(string)
	return value
}

// ViewStateError returns the record error field.
func (r Record) ViewStateError() any {
	return r[RecordErrorField]
}
