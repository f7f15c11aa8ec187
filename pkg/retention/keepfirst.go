package retention

import (
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

// KeepFirst returns the first SID in sids, in slice order, whose timestamp lies
// in [minDate, maxDate). With keepHealthy set, unhealthy SIDs are passed over. The
// result holds at most one member.
//
// Ties are broken by position in sids, not by timestamp: a caller passing a
// newest-first list gets the newest qualifying SID of the range.
func KeepFirst(sids []snapshot.SID, minDate, maxDate time.Time, keepHealthy bool) Set {
	for _, sid := range sids {
		if sid.IsRoot {
			continue
		}
		if keepHealthy && !sid.Healthy {
			continue
		}
		if inRange(sid, minDate, maxDate) {
			return NewSet(sid)
		}
	}
	return Set{}
}

// KeepAll returns every SID whose timestamp lies in [minDate, maxDate), regardless of health.
func KeepAll(sids []snapshot.SID, minDate, maxDate time.Time) Set {
	keep := Set{}
	for _, sid := range sids {
		if !sid.IsRoot && inRange(sid, minDate, maxDate) {
			keep.Add(sid)
		}
	}
	return keep
}

func inRange(sid snapshot.SID, minDate, maxDate time.Time) bool {
	return !sid.Timestamp.Before(minDate) && sid.Timestamp.Before(maxDate)
}
