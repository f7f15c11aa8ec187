package hints_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulschiretz/pgl-retention/pkg/hints"
)

func TestHint(t *testing.T) {
	var (
		errNothingToPrune = errors.New("nothing to prune")
		errOther          = errors.New("disk on fire")
		errHinted         = hints.Wrap(errNothingToPrune)
		errHintedMsg      = hints.New("hook execution is disabled")
	)

	t.Run("Wrap nil", func(t *testing.T) {
		if hints.Wrap(nil) != nil {
			t.Error("Wrap(nil) should return nil")
		}
	})

	t.Run("New keeps message", func(t *testing.T) {
		if errHintedMsg.Error() != "hook execution is disabled" {
			t.Errorf("unexpected message %q", errHintedMsg.Error())
		}
	})

	t.Run("Newf wraps", func(t *testing.T) {
		err := hints.Newf("journal skipped: %w", errNothingToPrune)
		if !hints.Is(err, errNothingToPrune) {
			t.Errorf("expected Newf hint to match the wrapped sentinel, got %v", err)
		}
	})

	t.Run("IsHint", func(t *testing.T) {
		testCases := []struct {
			name     string
			err      error
			expected bool
		}{
			{"Nil", nil, false},
			{"Plain", errOther, false},
			{"Hinted", errHinted, true},
			{"HintedMsg", errHintedMsg, true},
			{"WrappedHint", fmt.Errorf("prune: %w", errHinted), true},
			{"WrappedPlain", fmt.Errorf("prune: %w", errOther), false},
			{"DoubleWrappedHint", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", errHinted)), true},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				if got := hints.IsHint(tc.err); got != tc.expected {
					t.Errorf("IsHint() = %v, want %v", got, tc.expected)
				}
			})
		}
	})

	t.Run("Is", func(t *testing.T) {
		if !hints.Is(errHinted, errNothingToPrune) {
			t.Error("Is(hinted, base) should be true")
		}
		if hints.Is(errNothingToPrune, errNothingToPrune) {
			t.Error("Is(base, base) should be false because it is not a hint")
		}
		if hints.Is(errHinted, errOther) {
			t.Error("Is(hinted, other) should be false")
		}
	})
}
