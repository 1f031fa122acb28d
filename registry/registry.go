// Package registry correlates arbitrary event identifiers with the loading
// lifecycle of tracked operations.
//
// A Rule names the event that starts an operation together with the events
// that finish it successfully (reset) or with a failure (error). Add flattens
// rules into a multi-map keyed by event id so that a single event may play
// several roles at once, for example starting one operation while resetting
// another.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Role describes the part an event plays for a tracked operation.
type Role uint8

const (
	// RoleStartLoading marks the event that starts an operation. The event id
	// is also the operation id.
	RoleStartLoading Role = iota + 1
	// RoleReset marks an event that clears the status of an operation.
	RoleReset
	// RoleError marks an event that moves an operation into the error state.
	RoleError
)

// String returns the role name used in logs and metrics.
func (r Role) String() string {
	switch r {
	case RoleStartLoading:
		return "start_loading"
	case RoleReset:
		return "reset"
	case RoleError:
		return "error"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Assignment records that an event plays Role for the operation started by
// For. For is empty for RoleStartLoading.
type Assignment struct {
	Role Role
	For  string
}

// Rule declares one tracked operation.
type Rule struct {
	Start string
	Reset []string
	Error []string
}

// Registry maps event ids to their role assignments. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[string][]Assignment
}

// New creates a registry populated with the provided rules.
func New(rules ...Rule) *Registry {
	r := &Registry{actions: make(map[string][]Assignment)}
	r.Add(rules...)
	return r
}

// Add merges the rules into the registry. Assignments are appended, so
// registering the same rule twice yields duplicate entries.
func (r *Registry) Add(rules ...Rule) {
	if r == nil || len(rules) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actions == nil {
		r.actions = make(map[string][]Assignment)
	}
	for _, rule := range rules {
		r.addRule(rule)
	}
}

// Swap withdraws the assignments contributed by previous and adds next in one
// step. Only one assignment is withdrawn per rule entry, so assignments added
// by other rules for the same ids survive.
func (r *Registry) Swap(previous, next []Rule) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actions == nil {
		r.actions = make(map[string][]Assignment)
	}
	for _, rule := range previous {
		r.withdraw(rule.Start, Assignment{Role: RoleStartLoading})
		for _, id := range rule.Reset {
			r.withdraw(id, Assignment{Role: RoleReset, For: rule.Start})
		}
		for _, id := range rule.Error {
			r.withdraw(id, Assignment{Role: RoleError, For: rule.Start})
		}
	}
	for _, rule := range next {
		r.addRule(rule)
	}
}

// Replace drops every assignment and registers rules instead.
func (r *Registry) Replace(rules ...Rule) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string][]Assignment)
	for _, rule := range rules {
		r.addRule(rule)
	}
}

func (r *Registry) addRule(rule Rule) {
	r.append(rule.Start, Assignment{Role: RoleStartLoading})
	for _, id := range rule.Reset {
		r.append(id, Assignment{Role: RoleReset, For: rule.Start})
	}
	for _, id := range rule.Error {
		r.append(id, Assignment{Role: RoleError, For: rule.Start})
	}
}

// withdraw removes the last occurrence of assignment under eventID.
func (r *Registry) withdraw(eventID string, assignment Assignment) {
	existing := r.actions[eventID]
	for i := len(existing) - 1; i >= 0; i-- {
		if existing[i] != assignment {
			continue
		}
		if len(existing) == 1 {
			delete(r.actions, eventID)
			return
		}
		next := make([]Assignment, 0, len(existing)-1)
		next = append(next, existing[:i]...)
		r.actions[eventID] = append(next, existing[i+1:]...)
		return
	}
}

func (r *Registry) append(eventID string, assignment Assignment) {
	existing := r.actions[eventID]
	// Copy on append so slices handed out by RolesFor stay untouched.
	next := make([]Assignment, len(existing), len(existing)+1)
	copy(next, existing)
	r.actions[eventID] = append(next, assignment)
}

// Remove deletes every assignment keyed by eventID and drops reset and error
// assignments of other events that target eventID. Start assignments are
// never removed from other keys.
func (r *Registry) Remove(eventID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, eventID)
	for key, assignments := range r.actions {
		kept := assignments[:0:0]
		for _, a := range assignments {
			if a.Role != RoleStartLoading && a.For == eventID {
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == len(assignments) {
			continue
		}
		if len(kept) == 0 {
			delete(r.actions, key)
			continue
		}
		r.actions[key] = kept
	}
}

// RolesFor returns a copy of the assignments registered for eventID.
func (r *Registry) RolesFor(eventID string) []Assignment {
	if r == nil {
		return []Assignment{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	assignments := r.actions[eventID]
	out := make([]Assignment, len(assignments))
	copy(out, assignments)
	return out
}

// IsTracked reports whether eventID has at least one assignment.
func (r *Registry) IsTracked(eventID string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions[eventID]) > 0
}

// HasRole reports whether eventID plays role for any operation.
func (r *Registry) HasRole(eventID string, role Role) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.actions[eventID] {
		if a.Role == role {
			return true
		}
	}
	return false
}

// TargetsForRole returns the operation ids eventID resets or errors, in
// registration order.
func (r *Registry) TargetsForRole(eventID string, role Role) []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var targets []string
	for _, a := range r.actions[eventID] {
		if a.Role == role {
			targets = append(targets, a.For)
		}
	}
	return targets
}

// Events returns the sorted list of event ids with at least one assignment.
func (r *Registry) Events() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.actions))
	for id := range r.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of keyed event ids.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
