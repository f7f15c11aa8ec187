package retention

import (
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

// Evaluate applies the date based rules of p to sids as of now and partitions
// them into kept and deleted snapshots.
//
// sids should be ordered newest first; bucket rules pick the first qualifying
// SID in that order. Rules run in sequence over a shrinking pool: remove-older-than
// first, then smart remove on what is left. A SID deleted by an earlier rule is
// never brought back by a later one. The newest SID and the root sentinel are
// always kept, and named SIDs are kept when p.KeepNamed is set.
//
// Capacity rules are not applied here; see NewEviction.
func Evaluate(sids []snapshot.SID, now time.Time, p Policy) Result {
	var res Result

	newest, hasNewest := snapshot.Newest(sids)
	protected := func(sid snapshot.SID) (Rule, bool) {
		switch {
		case sid.IsRoot:
			return RuleRoot, true
		case hasNewest && sid.ID() == newest.ID():
			return RuleNewest, true
		case p.KeepNamed && sid.Named():
			return RuleNamed, true
		}
		return "", false
	}

	deleted := Set{}

	if p.RemoveOlderThan.Enabled {
		cutoff := RemoveOlderThanDate(now, p.RemoveOlderThan.Value, p.RemoveOlderThan.Unit)
		for _, sid := range sids {
			if _, ok := protected(sid); ok {
				continue
			}
			if sid.Timestamp.Before(cutoff) {
				deleted.Add(sid)
				res.Delete = append(res.Delete, Decision{SID: sid, Action: ActionDelete, Rule: RuleOlderThan})
			}
		}
	}

	pool := make([]snapshot.SID, 0, len(sids))
	for _, sid := range sids {
		if !deleted.Has(sid) {
			pool = append(pool, sid)
		}
	}

	var reasons map[string]Rule
	if p.SmartRemove.Enabled {
		reasons = smartRemoveReasons(pool, now, p.SmartRemove)
	}

	for _, sid := range pool {
		if rule, ok := protected(sid); ok {
			res.Keep = append(res.Keep, Decision{SID: sid, Action: ActionKeep, Rule: rule})
			continue
		}
		if !p.SmartRemove.Enabled {
			res.Keep = append(res.Keep, Decision{SID: sid, Action: ActionKeep, Rule: RuleUnmatched})
			continue
		}
		if rule, ok := reasons[sid.ID()]; ok {
			res.Keep = append(res.Keep, Decision{SID: sid, Action: ActionKeep, Rule: rule})
			continue
		}
		res.Delete = append(res.Delete, Decision{SID: sid, Action: ActionDelete, Rule: RuleSmartRemove})
	}

	return res
}

// smartRemoveReasons maps the ID of every SID kept by smart remove to the
// first rule, shortest period first, that kept it.
func smartRemoveReasons(pool []snapshot.SID, now time.Time, sr SmartRemove) map[string]Rule {
	reasons := make(map[string]Rule)
	record := func(s Set, rule Rule) {
		for id := range s {
			if _, seen := reasons[id]; !seen {
				reasons[id] = rule
			}
		}
	}

	record(KeepAllForLastDays(pool, now, sr.KeepAllDays), RuleKeepAll)
	record(KeepOnePerDay(pool, now, sr.KeepOnePerDayDays), RuleOnePerDay)
	record(KeepOnePerWeek(pool, now, sr.KeepOnePerWeekWeeks), RuleOnePerWeek)
	record(KeepOnePerMonth(pool, now, sr.KeepOnePerMonthMonths), RuleOnePerMonth)
	if sr.KeepOnePerYear {
		record(KeepOnePerYear(pool, now), RuleOnePerYear)
	}
	return reasons
}
