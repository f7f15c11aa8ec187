package retention

import (
	"testing"
	"time"
)

var april2016 = []string{
	"20160424-215134-123",
	"20160422-030324-123",
	"20160422-020324-123",
	"20160422-010324-123",
	"20160421-013218-123",
	"20160410-134327-123",
}

func TestKeepFirst(t *testing.T) {
	t.Run("result holds at most one SID", func(t *testing.T) {
		list := dailySIDs(at(2020, 3, 5), 700)
		got := KeepFirst(list, day(2021, 8, 5), day(2022, 1, 1), false)
		if len(got) != 1 {
			t.Fatalf("expected exactly one SID, got %d", len(got))
		}
	})

	t.Run("first element of the range in list order", func(t *testing.T) {
		list := dailySIDs(at(2022, 3, 5), 20)
		got := KeepFirst(list, day(2022, 3, 5), day(2030, 1, 1), false)
		assertSetTimes(t, got, at(2022, 3, 24))
	})

	t.Run("min is included and max is not", func(t *testing.T) {
		list := sids(day(2022, 3, 5), day(2022, 3, 3))
		got := KeepFirst(list, day(2022, 3, 3), day(2022, 3, 5), false)
		assertSetTimes(t, got, day(2022, 3, 3))
	})

	t.Run("list order wins over date order", func(t *testing.T) {
		list := mustParse(t, april2016...)
		got := KeepFirst(list, day(2016, 4, 20), day(2016, 4, 23), false)
		if len(got) != 1 || !got.Has(list[1]) {
			t.Fatalf("expected %s, got %v", list[1].ID(), got.Sorted())
		}
	})

	t.Run("permuting the input changes the pick", func(t *testing.T) {
		list := mustParse(t, april2016...)
		reordered := append(list[:0:0], list[3], list[1], list[2])
		got := KeepFirst(reordered, day(2016, 4, 20), day(2016, 4, 23), false)
		if !got.Has(list[3]) {
			t.Fatalf("expected %s, got %v", list[3].ID(), got.Sorted())
		}
	})

	t.Run("range without SIDs", func(t *testing.T) {
		list := mustParse(t, april2016...)
		got := KeepFirst(list, day(2016, 4, 11), day(2016, 4, 18), false)
		if len(got) != 0 {
			t.Fatalf("expected empty set, got %v", got.Sorted())
		}
	})

	t.Run("health only matters when requested", func(t *testing.T) {
		list := dailySIDs(at(2022, 3, 5), 20)
		for i := range list {
			list[i].Healthy = false
		}
		if got := KeepFirst(list, day(2022, 3, 5), day(2030, 1, 1), false); len(got) != 1 {
			t.Errorf("expected one SID when health is ignored, got %d", len(got))
		}
		if got := KeepFirst(list, day(2022, 3, 5), day(2030, 1, 1), true); len(got) != 0 {
			t.Errorf("expected no SID when only unhealthy SIDs exist, got %d", len(got))
		}
	})

	t.Run("skips unhealthy SID", func(t *testing.T) {
		list := mustParse(t, april2016...)
		list[1].Healthy = false
		got := KeepFirst(list, day(2016, 4, 20), day(2016, 4, 23), true)
		if len(got) != 1 || got.Sorted()[0].ID() != "20160422-020324-123" {
			t.Fatalf("expected 20160422-020324-123, got %v", got.Sorted())
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := KeepFirst(nil, day(2016, 4, 20), day(2016, 4, 23), true); len(got) != 0 {
			t.Fatalf("expected empty set, got %v", got)
		}
	})
}

func TestKeepAll(t *testing.T) {
	t.Run("simple range", func(t *testing.T) {
		list := dailySIDs(day(2024, 2, 10), 15)
		got := KeepAll(list, day(2024, 2, 12), day(2024, 2, 20))
		want := make([]time.Time, 0, 8)
		for d := 19; d >= 12; d-- {
			want = append(want, day(2024, 2, d))
		}
		assertSetTimes(t, got, want...)
	})

	t.Run("keeps unhealthy SIDs", func(t *testing.T) {
		list := dailySIDs(day(2024, 2, 10), 3)
		list[0].Healthy = false
		if got := KeepAll(list, day(2024, 2, 10), day(2024, 2, 13)); len(got) != 3 {
			t.Errorf("expected 3 SIDs, got %d", len(got))
		}
	})
}
