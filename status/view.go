package status

import (
	"encoding/json"
	"fmt"
)

// Attribute keys used by the rendering contract.
const (
	AttributeTitle = "title"
	AttributeError = "error"
)

// View is the tagged representation consumed by presentation layers:
// {type, attributes}. Attributes is nil for idle, loading and loaded.
type View struct {
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ToView converts the status into its rendering contract.
func (v *Value) ToView() View {
	view := View{Type: v.Kind().String()}
	switch v.Kind() {
	case KindEmpty:
		if title, ok := v.Title(); ok {
			view.Attributes = map[string]any{AttributeTitle: title}
		}
	case KindError:
		if v.payload != nil {
			view.Attributes = map[string]any{AttributeError: v.payload}
		}
	}
	return view
}

// FromView rebuilds a status from its rendering contract. Idle, loading and
// loaded resolve to the shared singletons.
func FromView(view View) (*Value, error) {
	kind, err := ParseKind(view.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindIdle:
		return Idle(), nil
	case KindLoading:
		return Loading(), nil
	case KindLoaded:
		return Loaded(), nil
	case KindEmpty:
		raw, ok := view.Attributes[AttributeTitle]
		if !ok {
			return EmptyUntitled(), nil
		}
		title, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("empty status title must be a string, got %T", raw)
		}
		return Empty(title), nil
	case KindError:
		return Error(view.Attributes[AttributeError]), nil
	default:
		return nil, fmt.Errorf("unsupported view status %s", kind)
	}
}

// MarshalJSON encodes the status using the rendering contract.
func (v *Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToView())
}

// UnmarshalJSON decodes a status from the rendering contract.
func (v *Value) UnmarshalJSON(data []byte) error {
	var view View
	if err := json.Unmarshal(data, &view); err != nil {
		return fmt.Errorf("decode view status: %w", err)
	}
	decoded, err := FromView(view)
	if err != nil {
		return err
	}
	*v = *decoded
	return nil
}

// Handlers holds one callback per status kind. Nil handlers are skipped.
type Handlers struct {
	Idle    func()
	Loading func()
	Loaded  func()
	Empty   func(title string)
	Error   func(payload any)
}

// Match invokes the handler registered for the status kind.
func Match(v *Value, h Handlers) {
	switch v.Kind() {
	case KindIdle:
		if h.Idle != nil {
			h.Idle()
		}
	case KindLoading:
		if h.Loading != nil {
			h.Loading()
		}
	case KindLoaded:
		if h.Loaded != nil {
			h.Loaded()
		}
	case KindEmpty:
		if h.Empty != nil {
			title, _ := v.Title()
			h.Empty(title)
		}
	case KindError:
		if h.Error != nil {
			h.Error(v.Payload())
		}
	}
}
