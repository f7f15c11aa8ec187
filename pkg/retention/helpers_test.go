package retention

import (
	"testing"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

// at builds a UTC timestamp. Missing hour/minute default to 07:42:31.
func at(y int, m time.Month, d int, hm ...int) time.Time {
	h, mi, sec := 7, 42, 31
	if len(hm) > 0 {
		h, mi, sec = hm[0], 0, 0
	}
	if len(hm) > 1 {
		mi = hm[1]
	}
	return time.Date(y, m, d, h, mi, sec, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sids builds healthy SIDs with tag 123, sorted newest first.
func sids(times ...time.Time) []snapshot.SID {
	out := make([]snapshot.SID, 0, len(times))
	for _, ts := range times {
		out = append(out, snapshot.New(ts, "123"))
	}
	snapshot.SortNewestFirst(out)
	return out
}

// dailySIDs builds n SIDs, one per day starting at start.
func dailySIDs(start time.Time, n int) []snapshot.SID {
	times := make([]time.Time, n)
	for i := range n {
		times[i] = start.AddDate(0, 0, i)
	}
	return sids(times...)
}

func mustParse(t *testing.T, ids ...string) []snapshot.SID {
	t.Helper()
	out := make([]snapshot.SID, 0, len(ids))
	for _, id := range ids {
		sid, err := snapshot.ParseID(id)
		if err != nil {
			t.Fatalf("ParseID(%q): %v", id, err)
		}
		// Tests compute boundaries in UTC.
		y, mo, d := sid.Timestamp.Date()
		h, mi, s := sid.Timestamp.Clock()
		sid.Timestamp = time.Date(y, mo, d, h, mi, s, 0, time.UTC)
		out = append(out, sid)
	}
	return out
}

// assertSetTimes checks that got holds exactly the given timestamps.
func assertSetTimes(t *testing.T, got Set, want ...time.Time) {
	t.Helper()
	sorted := got.Sorted()
	if len(sorted) != len(want) {
		t.Fatalf("expected %d SIDs, got %d: %v", len(want), len(sorted), sorted)
	}
	for i, w := range want {
		if !sorted[i].Timestamp.Equal(w) {
			t.Errorf("index %d: expected %v, got %v", i, w, sorted[i].Timestamp)
		}
	}
}
