package variables

import "github.com/rendis/waypoint/internal/convert"

// Scope is a chain of registers ordered innermost first. Lookups walk outward
// until a register declares the name.
type Scope []*Register

// Lookup returns the register declaring name, or nil.
func (s Scope) Lookup(name string) *Register {
	for _, r := range s {
		if r != nil && r.Declared(name) {
			return r
		}
	}
	return nil
}

// Get resolves name through the chain.
func (s Scope) Get(name string) (any, bool) {
	r := s.Lookup(name)
	if r == nil {
		return nil, false
	}
	return r.Get(name)
}

// Set writes to the nearest register declaring name, or declares it on the
// innermost register.
func (s Scope) Set(name string, value any) {
	if r := s.Lookup(name); r != nil {
		r.Set(name, value)
		return
	}
	if len(s) > 0 && s[0] != nil {
		s[0].Set(name, value)
	}
}

// Data flattens every set variable into one map; inner registers shadow outer ones.
func (s Scope) Data() map[string]any {
	data := make(map[string]any)
	for i := len(s) - 1; i >= 0; i-- {
		r := s[i]
		if r == nil {
			continue
		}
		for _, slot := range r.slots {
			if slot.Set {
				data[slot.Name] = slot.Value
			} else {
				delete(data, slot.Name)
			}
		}
	}
	return data
}

// Variable is a typed handle on a named slot.
type Variable[T any] struct {
	Name string
}

// Declare declares the variable on r.
func (v Variable[T]) Declare(r *Register) {
	r.Declare(v.Name)
}

// Get resolves the variable through s and coerces it to T. ok is false when the
// variable is undeclared or unset.
func (v Variable[T]) Get(s Scope) (value T, ok bool, err error) {
	raw, found := s.Get(v.Name)
	if !found {
		return value, false, nil
	}
	value, err = convert.To[T](raw)
	if err != nil {
		return value, true, err
	}
	return value, true, nil
}

// Set stores value through s.
func (v Variable[T]) Set(s Scope, value T) {
	s.Set(v.Name, value)
}

// Unset clears the variable in the register declaring it.
func (v Variable[T]) Unset(s Scope) {
	if r := s.Lookup(v.Name); r != nil {
		r.Unset(v.Name)
	}
}
