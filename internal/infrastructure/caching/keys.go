// Package caching implements the resource cache store: keyed, in-memory
// server-derived values with per-key freshness and retention timers.
package caching

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies one cached value as an ordered tuple of
// (resource, scope, id?, filters?). Two keys are equal iff their tuples are
// deep-equal; filters compare by value, never by reference.
type Key struct {
	Resource string
	Scope    string
	ID       string
	Filters  map[string]string
}

// Canonical returns a stable string form used for map keys and ordering.
// Filters are sorted so equal-by-value keys always canonicalize identically.
func (k Key) Canonical() string {
	var sb strings.Builder
	sb.WriteString(k.Resource)
	sb.WriteByte('|')
	sb.WriteString(k.Scope)
	sb.WriteByte('|')
	sb.WriteString(k.ID)
	if len(k.Filters) > 0 {
		names := make([]string, 0, len(k.Filters))
		for name := range k.Filters {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteByte('|')
		for i, name := range names {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%s=%s", name, k.Filters[name])
		}
	}
	return sb.String()
}

// Equal compares keys by value.
func (k Key) Equal(other Key) bool {
	return k.Canonical() == other.Canonical()
}

// Prefix addresses a key family. An empty Scope matches every scope of the
// resource, so Prefix{Resource: "cases"} covers all list variants regardless
// of filter payload.
type Prefix struct {
	Resource string
	Scope    string
	ID       string
}

// Matches reports whether a key falls under the prefix.
func (p Prefix) Matches(k Key) bool {
	if p.Resource != "" && p.Resource != k.Resource {
		return false
	}
	if p.Scope != "" && p.Scope != k.Scope {
		return false
	}
	if p.ID != "" && p.ID != k.ID {
		return false
	}
	return true
}

func (p Prefix) String() string {
	return fmt.Sprintf("%s|%s|%s", p.Resource, p.Scope, p.ID)
}
