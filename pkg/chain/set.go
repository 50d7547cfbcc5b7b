package chain

import "slices"

// Set is a collection of chain families used by plugins to declare support.
type Set map[Type]struct{}

// NewSet builds a set from the given families.
func NewSet(types ...Type) Set {
	s := make(Set, len(types))
	for _, t := range types {
		s[New(t, 0).Type] = struct{}{}
	}
	return s
}

// SupportsType reports whether t is in the set.
func (s Set) SupportsType(t Type) bool {
	_, ok := s[t]
	return ok
}

// Supports reports whether the family of c is in the set.
func (s Set) Supports(c Chain) bool {
	return s.SupportsType(c.Type)
}

// Types returns the members of the set in KnownTypes order followed by custom
// families sorted lexically.
func (s Set) Types() []Type {
	out := make([]Type, 0, len(s))
	seen := make(map[Type]struct{}, len(s))
	for _, t := range KnownTypes {
		if s.SupportsType(t) {
			out = append(out, t)
			seen[t] = struct{}{}
		}
	}
	var custom []Type
	for t := range s {
		if _, ok := seen[t]; !ok {
			custom = append(custom, t)
		}
	}
	slices.Sort(custom)
	return append(out, custom...)
}
