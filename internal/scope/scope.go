// Package scope defines the closed set of permissions a third-party
// application can request against a user's profile. Scopes are stored
// space-joined; everything outside this package works with typed sets.
package scope

import (
	"fmt"
	"strings"
)

type Scope string

const (
	UserUUIDRead   Scope = "user.uuid:read"
	UserNameRead   Scope = "user.name:read"
	UserAvatarRead Scope = "user.avatar:read"
)

var known = map[Scope]bool{
	UserUUIDRead:   true,
	UserNameRead:   true,
	UserAvatarRead: true,
}

func (s Scope) Valid() bool {
	return known[s]
}

// Set is an ordered, duplicate-free collection of scopes.
type Set []Scope

// New builds a Set from raw values, rejecting anything outside the
// closed scope enum.
func New(values []string) (Set, error) {
	var set Set
	for _, v := range values {
		s := Scope(v)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown scope %q", v)
		}
		set = set.add(s)
	}
	return set, nil
}

// Parse reads the stored space-joined form back into a Set. Unknown
// values are dropped rather than rejected so that a retired scope does
// not invalidate rows that still mention it.
func Parse(joined string) Set {
	var set Set
	for _, v := range strings.Fields(joined) {
		s := Scope(v)
		if s.Valid() {
			set = set.add(s)
		}
	}
	return set
}

func (s Set) add(v Scope) Set {
	if s.Contains(v) {
		return s
	}
	return append(s, v)
}

// Join returns the stored representation.
func (s Set) Join() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = string(v)
	}
	return strings.Join(parts, " ")
}

func (s Set) Contains(v Scope) bool {
	for _, have := range s {
		if have == v {
			return true
		}
	}
	return false
}

// ContainsAll reports whether other is a subset of s.
func (s Set) ContainsAll(other Set) bool {
	for _, v := range other {
		if !s.Contains(v) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same scopes, ignoring order.
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && s.ContainsAll(other)
}

func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}
