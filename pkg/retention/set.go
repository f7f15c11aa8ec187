// Package retention decides which snapshots survive a cleanup.
//
// All rules are pure functions of an SID list, a reference time and a Policy.
// Calendar boundaries (days, Monday-aligned weeks, months, years) are computed
// in the location of the reference time, so callers must pass SIDs and "now"
// in the same location. The only rule that touches live state is capacity
// eviction, which measures the destination through a CapacityProbe.
package retention

import (
	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

// Set is a set of SIDs keyed by their ID.
type Set map[string]snapshot.SID

// NewSet returns a set holding sids.
func NewSet(sids ...snapshot.SID) Set {
	s := make(Set, len(sids))
	for _, sid := range sids {
		s.Add(sid)
	}
	return s
}

// Add inserts sid.
func (s Set) Add(sid snapshot.SID) {
	s[sid.ID()] = sid
}

// Has reports whether sid is a member.
func (s Set) Has(sid snapshot.SID) bool {
	_, ok := s[sid.ID()]
	return ok
}

// Merge adds every member of o to s and returns s.
func (s Set) Merge(o Set) Set {
	for k, v := range o {
		s[k] = v
	}
	return s
}

// Sorted returns the members newest first.
func (s Set) Sorted() []snapshot.SID {
	out := make([]snapshot.SID, 0, len(s))
	for _, sid := range s {
		out = append(out, sid)
	}
	snapshot.SortNewestFirst(out)
	return out
}
