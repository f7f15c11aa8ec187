package retention

import (
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

// KeepAllForLastDays keeps every SID of the last n calendar days, today included.
func KeepAllForLastDays(sids []snapshot.SID, now time.Time, n int) Set {
	if n <= 0 {
		return Set{}
	}
	today := DateOf(now)
	return KeepAll(sids, today.AddDate(0, 0, -(n-1)), today.AddDate(0, 0, 1))
}

// KeepOnePerDay keeps the first healthy SID of each of the last n days.
func KeepOnePerDay(sids []snapshot.SID, now time.Time, n int) Set {
	keep := Set{}
	d := DateOf(now)
	for range max(n, 0) {
		keep.Merge(KeepFirst(sids, d, d.AddDate(0, 0, 1), true))
		d = d.AddDate(0, 0, -1)
	}
	return keep
}

// KeepOnePerWeek keeps the first healthy SID of each of the last n Monday-aligned weeks.
func KeepOnePerWeek(sids []snapshot.SID, now time.Time, n int) Set {
	keep := Set{}
	start := WeekStart(now)
	for range max(n, 0) {
		keep.Merge(KeepFirst(sids, start, start.AddDate(0, 0, 7), true))
		start = start.AddDate(0, 0, -7)
	}
	return keep
}

// KeepOnePerMonth keeps the first healthy SID of each of the last n calendar months.
func KeepOnePerMonth(sids []snapshot.SID, now time.Time, n int) Set {
	keep := Set{}
	d1 := MonthStart(now)
	d2 := IncMonth(d1)
	for range max(n, 0) {
		keep.Merge(KeepFirst(sids, d1, d2, true))
		d2 = d1
		d1 = DecMonth(d1)
	}
	return keep
}

// KeepOnePerYear keeps the first healthy SID of every year from the year of the
// oldest SID up to and including the current year.
func KeepOnePerYear(sids []snapshot.SID, now time.Time) Set {
	keep := Set{}
	oldest, ok := oldestSID(sids)
	if !ok {
		return keep
	}
	loc := now.Location()
	for year := oldest.Timestamp.In(loc).Year(); year <= now.Year(); year++ {
		keep.Merge(KeepFirst(sids, YearStart(year, loc), YearStart(year+1, loc), true))
	}
	return keep
}

func oldestSID(sids []snapshot.SID) (snapshot.SID, bool) {
	var oldest snapshot.SID
	found := false
	for _, sid := range sids {
		if sid.IsRoot {
			continue
		}
		if !found || sid.Timestamp.Before(oldest.Timestamp) {
			oldest = sid
			found = true
		}
	}
	return oldest, found
}
