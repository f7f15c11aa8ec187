package retention

import (
	"reflect"
	"testing"

	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

func smartOnly(sr SmartRemove) Policy {
	sr.Enabled = true
	return Policy{SmartRemove: sr}
}

func rulesOf(ds []Decision) map[string]Rule {
	out := make(map[string]Rule, len(ds))
	for _, d := range ds {
		out[d.SID.ID()] = d.Rule
	}
	return out
}

func TestEvaluateSmartRemovePerDay(t *testing.T) {
	list := sids(
		at(2025, 4, 17, 22, 0),
		at(2025, 4, 17, 4, 0),
		at(2025, 4, 16, 8, 30),
		at(2025, 4, 15, 16, 0),
		at(2025, 4, 15, 0, 0),
		at(2025, 4, 14, 23, 59),
		at(2025, 4, 13, 19, 0),
		at(2025, 4, 13, 7, 0),
		at(2025, 4, 12, 18, 45),
		at(2025, 4, 12, 18, 5),
		at(2025, 4, 11, 9, 0),
	)

	res := Evaluate(list, at(2025, 4, 17, 23, 0), smartOnly(SmartRemove{KeepOnePerDayDays: 5}))

	assertSetTimes(t, res.KeepSet(),
		at(2025, 4, 17, 22, 0),
		at(2025, 4, 16, 8, 30),
		at(2025, 4, 15, 16, 0),
		at(2025, 4, 14, 23, 59),
		at(2025, 4, 13, 19, 0),
	)
	if len(res.Delete) != 6 {
		t.Fatalf("expected 6 deletions, got %d", len(res.Delete))
	}
	for _, d := range res.Delete {
		if d.Rule != RuleSmartRemove || d.Action != ActionDelete {
			t.Errorf("unexpected delete decision %+v", d)
		}
	}

	keepRules := rulesOf(res.Keep)
	if keepRules[list[0].ID()] != RuleNewest {
		t.Errorf("expected newest to be kept by %q, got %q", RuleNewest, keepRules[list[0].ID()])
	}
	if keepRules[list[2].ID()] != RuleOnePerDay {
		t.Errorf("expected %s kept by %q, got %q", list[2].ID(), RuleOnePerDay, keepRules[list[2].ID()])
	}
}

func TestEvaluateRuleAttributionPrefersShortestPeriod(t *testing.T) {
	list := dailySIDs(day(2025, 1, 1), 60)
	p := smartOnly(SmartRemove{KeepAllDays: 2, KeepOnePerDayDays: 5, KeepOnePerWeekWeeks: 4, KeepOnePerMonthMonths: 3, KeepOnePerYear: true})
	res := Evaluate(list, day(2025, 3, 1), p)

	rules := rulesOf(res.Keep)
	want := map[string]Rule{
		list[0].ID(): RuleNewest,     // 03-01
		list[1].ID(): RuleKeepAll,    // 02-28
		list[2].ID(): RuleOnePerDay,  // 02-27
		list[6].ID(): RuleOnePerWeek, // 02-23, first of the week starting 02-17
	}
	for id, rule := range want {
		if rules[id] != rule {
			t.Errorf("%s: expected rule %q, got %q", id, rule, rules[id])
		}
	}
	// January is represented by 01-31, which is outside the week buckets.
	if r := rules[list[29].ID()]; r != RuleOnePerMonth {
		t.Errorf("%s: expected rule %q, got %q", list[29].ID(), RuleOnePerMonth, r)
	}
}

func TestEvaluateOlderThan(t *testing.T) {
	list := sids(
		day(2025, 8, 27),
		day(2025, 8, 12),
		day(2025, 8, 11),
		day(2025, 8, 10),
		day(2024, 1, 1),
	)
	p := Policy{RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 2, Unit: UnitWeek}}
	res := Evaluate(list, day(2025, 8, 28), p)

	assertSetTimes(t, res.KeepSet(), day(2025, 8, 27), day(2025, 8, 12), day(2025, 8, 11))
	assertSetTimes(t, res.DeleteSet(), day(2025, 8, 10), day(2024, 1, 1))
	for _, d := range res.Delete {
		if d.Rule != RuleOlderThan {
			t.Errorf("expected rule %q, got %q", RuleOlderThan, d.Rule)
		}
	}
	for _, d := range res.Keep {
		if d.SID.ID() != list[0].ID() && d.Rule != RuleUnmatched {
			t.Errorf("expected rule %q, got %q", RuleUnmatched, d.Rule)
		}
	}
}

func TestEvaluateOlderThanIsNotUndoneBySmartRemove(t *testing.T) {
	list := sids(day(2025, 4, 17), day(2023, 5, 1), day(2022, 5, 1))
	p := Policy{
		RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 1, Unit: UnitYear},
		SmartRemove:     SmartRemove{Enabled: true, KeepOnePerYear: true},
	}
	res := Evaluate(list, day(2025, 4, 18), p)

	assertSetTimes(t, res.KeepSet(), day(2025, 4, 17))
	rules := rulesOf(res.Delete)
	for _, sid := range list[1:] {
		if rules[sid.ID()] != RuleOlderThan {
			t.Errorf("%s: expected rule %q, got %q", sid.ID(), RuleOlderThan, rules[sid.ID()])
		}
	}
}

func TestEvaluateProtection(t *testing.T) {
	list := sids(day(2020, 3, 1), day(2019, 3, 1), day(2018, 3, 1))
	list[2].Name = "first-install"
	list = append([]snapshot.SID{snapshot.Root()}, list...)

	p := Policy{RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 1, Unit: UnitDay}}

	t.Run("named snapshots are protected when requested", func(t *testing.T) {
		p := p
		p.KeepNamed = true
		res := Evaluate(list, day(2025, 1, 1), p)
		rules := rulesOf(res.Keep)
		if rules["/"] != RuleRoot {
			t.Errorf("expected root to be kept by %q, got %q", RuleRoot, rules["/"])
		}
		if rules[list[1].ID()] != RuleNewest {
			t.Errorf("expected newest to be kept by %q, got %q", RuleNewest, rules[list[1].ID()])
		}
		if rules[list[3].ID()] != RuleNamed {
			t.Errorf("expected named to be kept by %q, got %q", RuleNamed, rules[list[3].ID()])
		}
		if len(res.Delete) != 1 || res.Delete[0].SID.ID() != list[2].ID() {
			t.Errorf("expected only %s to be deleted, got %v", list[2].ID(), res.Delete)
		}
	})

	t.Run("named snapshots are not protected otherwise", func(t *testing.T) {
		res := Evaluate(list, day(2025, 1, 1), p)
		if len(res.Delete) != 2 {
			t.Errorf("expected 2 deletions, got %v", res.Delete)
		}
	})
}

func TestEvaluateEmptyInput(t *testing.T) {
	res := Evaluate(nil, day(2025, 1, 1), smartOnly(SmartRemove{KeepOnePerDayDays: 3, KeepOnePerYear: true}))
	if len(res.Keep) != 0 || len(res.Delete) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestEvaluateNewestAlwaysKept(t *testing.T) {
	list := dailySIDs(day(2019, 1, 1), 900)
	now := day(2030, 1, 1)
	policies := []Policy{
		{},
		{RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 1, Unit: UnitDay}},
		{RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 1, Unit: UnitWeek}},
		{RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 1, Unit: UnitYear}},
		smartOnly(SmartRemove{}),
		smartOnly(SmartRemove{KeepAllDays: 1, KeepOnePerDayDays: 1}),
		{
			RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 1, Unit: UnitYear},
			SmartRemove:     SmartRemove{Enabled: true, KeepOnePerYear: true},
		},
	}
	for i, p := range policies {
		res := Evaluate(list, now, p)
		if !res.KeepSet().Has(list[0]) {
			t.Errorf("policy %d: newest snapshot was not kept", i)
		}
		if len(res.Keep)+len(res.Delete) != len(list) {
			t.Errorf("policy %d: expected %d decisions, got %d", i, len(list), len(res.Keep)+len(res.Delete))
		}
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	list := dailySIDs(day(2021, 6, 1), 1500)
	for i := range list {
		if i%7 == 3 {
			list[i].Healthy = false
		}
	}
	now := day(2025, 7, 9)
	p := Policy{
		RemoveOlderThan: RemoveOlderThan{Enabled: true, Value: 3, Unit: UnitYear},
		SmartRemove: SmartRemove{
			Enabled:               true,
			KeepAllDays:           2,
			KeepOnePerDayDays:     7,
			KeepOnePerWeekWeeks:   4,
			KeepOnePerMonthMonths: 24,
			KeepOnePerYear:        true,
		},
	}

	first := Evaluate(list, now, p)
	second := Evaluate(list, now, p)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two evaluations of the same input differ")
	}

	again := Evaluate(first.Kept(), now, p)
	if len(again.Delete) != 0 {
		t.Errorf("re-evaluating the kept set deleted %d snapshots: %v", len(again.Delete), again.Delete)
	}
}

func TestResultCountByRule(t *testing.T) {
	res := Result{
		Keep:   []Decision{{Rule: RuleNewest}, {Rule: RuleOnePerDay}, {Rule: RuleOnePerDay}},
		Delete: []Decision{{Rule: RuleSmartRemove}},
	}
	got := res.CountByRule()
	want := map[Rule]int{RuleNewest: 1, RuleOnePerDay: 2, RuleSmartRemove: 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
