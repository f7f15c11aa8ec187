// Package snapshot models snapshot identifiers (SIDs) and scans a snapshot
// directory for them.
//
// A SID directory is named YYYYMMDD-HHMMSS-TAG. The timestamp is the local wall
// clock of the moment the snapshot was taken; the tag disambiguates snapshots
// created within the same second (usually a profile number).
package snapshot

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const idLayout = "20060102-150405"

// ErrInvalidID is returned when a name does not have the YYYYMMDD-HHMMSS[-TAG] form.
var ErrInvalidID = errors.New("invalid snapshot id")

// SID identifies one completed snapshot. SIDs are values and are never mutated
// once constructed.
type SID struct {
	Timestamp time.Time
	Tag       string
	Name      string
	Healthy   bool
	IsRoot    bool

	// RelPathKey is the normalized directory path relative to the repository base.
	// It is a map key and not meant for direct filesystem access.
	RelPathKey string
}

// New builds a healthy SID for t with the given tag.
func New(t time.Time, tag string) SID {
	return SID{Timestamp: t.Truncate(time.Second), Tag: tag, Healthy: true}
}

// Root returns the sentinel for the live, not yet snapshotted state.
func Root() SID {
	return SID{IsRoot: true, Healthy: true, Tag: "root"}
}

// ParseID parses a directory name of the form YYYYMMDD-HHMMSS[-TAG]
// into a healthy, unnamed SID in the local time zone.
func ParseID(s string) (SID, error) {
	if len(s) < len(idLayout) {
		return SID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	ts, err := time.ParseInLocation(idLayout, s[:len(idLayout)], time.Local)
	if err != nil {
		return SID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}

	var tag string
	if rest := s[len(idLayout):]; rest != "" {
		if !strings.HasPrefix(rest, "-") || len(rest) == 1 {
			return SID{}, fmt.Errorf("%w: %q: malformed tag", ErrInvalidID, s)
		}
		tag = rest[1:]
	}
	return SID{Timestamp: ts, Tag: tag, Healthy: true}, nil
}

// ID formats the SID back into its directory name.
func (s SID) ID() string {
	if s.IsRoot {
		return "/"
	}
	id := s.Timestamp.Format(idLayout)
	if s.Tag != "" {
		id += "-" + s.Tag
	}
	return id
}

// String implements fmt.Stringer.
func (s SID) String() string {
	if s.Name != "" {
		return s.ID() + " (" + s.Name + ")"
	}
	return s.ID()
}

// Named reports whether the snapshot carries a user assigned name.
func (s SID) Named() bool {
	return s.Name != ""
}

// Date returns the calendar day of the snapshot at midnight in the timestamp's location.
func (s SID) Date() time.Time {
	y, m, d := s.Timestamp.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.Timestamp.Location())
}

func compare(a, b SID) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID(), b.ID())
}

// SortNewestFirst sorts sids in place, newest timestamp first.
func SortNewestFirst(sids []SID) {
	slices.SortStableFunc(sids, func(a, b SID) int { return compare(b, a) })
}

// SortOldestFirst sorts sids in place, oldest timestamp first.
func SortOldestFirst(sids []SID) {
	slices.SortStableFunc(sids, compare)
}

// Newest returns the SID with the greatest timestamp, ignoring the root sentinel.
func Newest(sids []SID) (SID, bool) {
	var newest SID
	found := false
	for _, s := range sids {
		if s.IsRoot {
			continue
		}
		if !found || compare(s, newest) > 0 {
			newest = s
			found = true
		}
	}
	return newest, found
}
