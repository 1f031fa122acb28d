package status

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind identifies the lifecycle state of a tracked operation.
type Kind uint8

const (
	// KindIdle is the default for operations that are not tracked.
	KindIdle Kind = iota
	// KindLoading marks an operation that has started and not finished.
	KindLoading
	// KindLoaded marks an operation that finished with data.
	KindLoaded
	// KindEmpty marks an operation that finished without data.
	KindEmpty
	// KindError marks a failed operation.
	KindError
)

var kindNames = [...]string{
	KindIdle:    "idle",
	KindLoading: "loading",
	KindLoaded:  "loaded",
	KindEmpty:   "empty",
	KindError:   "error",
}

// String returns the lower case tag name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind normalises the textual representation of a kind.
func ParseKind(value string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for k, name := range kindNames {
		if name == normalized {
			return Kind(k), nil
		}
	}
	return KindIdle, fmt.Errorf("unknown view status %q", value)
}

// Value is an immutable view status. Pointer identity is meaningful: readers
// hand out the same *Value for as long as the underlying status is unchanged,
// so consumers may compare by reference.
type Value struct {
	kind     Kind
	title    string
	hasTitle bool
	payload  any
}

var (
	idle    = &Value{kind: KindIdle}
	loading = &Value{kind: KindLoading}
	loaded  = &Value{kind: KindLoaded}
)

// Idle returns the shared idle status.
func Idle() *Value { return idle }

// Loading returns the shared loading status.
func Loading() *Value { return loading }

// Loaded returns the shared loaded status.
func Loaded() *Value { return loaded }

// Empty returns an empty status carrying a title.
func Empty(title string) *Value {
	return &Value{kind: KindEmpty, title: title, hasTitle: true}
}

// EmptyUntitled returns an empty status without a title.
func EmptyUntitled() *Value {
	return &Value{kind: KindEmpty}
}

// Error returns an error status carrying the caller defined payload. The
// payload is never inspected.
func Error(payload any) *Value {
	return &Value{kind: KindError, payload: payload}
}

// Kind returns the active tag. A nil value is idle.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindIdle
	}
	return v.kind
}

// Title returns the empty state title, if one was set.
func (v *Value) Title() (string, bool) {
	if v == nil || v.kind != KindEmpty {
		return "", false
	}
	return v.title, v.hasTitle
}

// Payload returns the error payload. It is nil for every other kind.
func (v *Value) Payload() any {
	if v == nil || v.kind != KindError {
		return nil
	}
	return v.payload
}

func (v *Value) IsIdle() bool    { return v.Kind() == KindIdle }
func (v *Value) IsLoading() bool { return v.Kind() == KindLoading }
func (v *Value) IsLoaded() bool  { return v.Kind() == KindLoaded }
func (v *Value) IsEmpty() bool   { return v.Kind() == KindEmpty }
func (v *Value) IsError() bool   { return v.Kind() == KindError }

// String renders the status for logs.
func (v *Value) String() string {
	switch v.Kind() {
	case KindEmpty:
		if title, ok := v.Title(); ok {
			return fmt.Sprintf("empty(%q)", title)
		}
		return "empty"
	case KindError:
		if v.payload == nil {
			return "error"
		}
		return fmt.Sprintf("error(%v)", v.payload)
	default:
		return v.Kind().String()
	}
}

// Equaler may be implemented by error payloads that need a custom notion of
// equality.
type Equaler interface {
	Equal(other any) bool
}

// Equal reports whether two statuses are semantically identical. Tags must
// match; empty statuses also compare their title and error statuses their
// payload.
func Equal(a, b *Value) bool {
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindEmpty:
		at, aok := a.Title()
		bt, bok := b.Title()
		return aok == bok && at == bt
	case KindError:
		return PayloadEqual(a.Payload(), b.Payload())
	default:
		return true
	}
}

// PayloadEqual compares two opaque payloads without panicking. Payloads that
// implement Equaler decide themselves; when both do, both must agree so the
// result does not depend on argument order. Reference types compare by
// identity and everything else by ==.
func PayloadEqual(a, b any) (equal bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ea, aok := a.(Equaler)
	eb, bok := b.(Equaler)
	switch {
	case aok && bok:
		return ea.Equal(b) && eb.Equal(a)
	case aok:
		return ea.Equal(b)
	case bok:
		return eb.Equal(a)
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	case reflect.Slice:
		va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	// Comparable structs may still hold uncomparable values behind interfaces.
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}
