// Package variables implements the scoped key/value store visible to an
// activity and its descendants.
package variables

import "sort"

// Slot is one named variable. A declared slot without a value is distinct from
// a slot holding a nil or zero value.
type Slot struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
	Set   bool   `json:"set"`
}

// Register holds the variables owned by a single execution context.
type Register struct {
	slots map[string]*Slot
}

// NewRegister returns an empty register.
func NewRegister() *Register {
	return &Register{slots: make(map[string]*Slot)}
}

// RestoreRegister rebuilds a register from persisted slots.
func RestoreRegister(slots []Slot) *Register {
	r := NewRegister()
	for _, s := range slots {
		cp := s
		r.slots[s.Name] = &cp
	}
	return r
}

// Declare makes name visible in this register without giving it a value.
// Declaring an existing name keeps its current value.
func (r *Register) Declare(name string) {
	if _, ok := r.slots[name]; ok {
		return
	}
	r.slots[name] = &Slot{Name: name}
}

// Declared reports whether name is declared here, set or not.
func (r *Register) Declared(name string) bool {
	_, ok := r.slots[name]
	return ok
}

// Get returns the value of name. ok is false when name is undeclared or unset.
func (r *Register) Get(name string) (value any, ok bool) {
	s, found := r.slots[name]
	if !found || !s.Set {
		return nil, false
	}
	return s.Value, true
}

// Set declares name if needed and stores value.
func (r *Register) Set(name string, value any) {
	s, ok := r.slots[name]
	if !ok {
		s = &Slot{Name: name}
		r.slots[name] = s
	}
	s.Value = value
	s.Set = true
}

// Unset returns name to the declared-without-value state.
func (r *Register) Unset(name string) {
	if s, ok := r.slots[name]; ok {
		s.Value = nil
		s.Set = false
	}
}

// Names returns the declared names in lexical order.
func (r *Register) Names() []string {
	names := make([]string, 0, len(r.slots))
	for n := range r.slots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Slots returns a copy of every slot, ordered by name.
func (r *Register) Slots() []Slot {
	out := make([]Slot, 0, len(r.slots))
	for _, n := range r.Names() {
		out = append(out, *r.slots[n])
	}
	return out
}
