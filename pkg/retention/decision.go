package retention

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// Action is what happens to a snapshot.
type Action int

const (
	ActionKeep Action = iota
	ActionDelete
	ActionEvict
)

var actionToString = map[Action]string{
	ActionKeep:   "keep",
	ActionDelete: "delete",
	ActionEvict:  "evict",
}

var stringToAction = map[string]Action{}

func init() {
	stringToAction = util.InvertMap(actionToString)
}

func (a Action) String() string {
	if str, ok := actionToString[a]; ok {
		return str
	}
	return fmt.Sprintf("unknown_action(%d)", a)
}

// ParseAction parses a string and returns the corresponding Action.
func ParseAction(s string) (Action, error) {
	if a, ok := stringToAction[s]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("invalid action: %q", s)
}

// MarshalJSON implements the json.Marshaler interface for Action.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Action.
func (a *Action) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("action should be a string, got %s", data)
	}
	parsed, err := ParseAction(str)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Rule names the rule that produced a decision.
type Rule string

const (
	RuleNewest      Rule = "newest"
	RuleRoot        Rule = "root"
	RuleNamed       Rule = "named"
	RuleKeepAll     Rule = "keep-all"
	RuleOnePerDay   Rule = "one-per-day"
	RuleOnePerWeek  Rule = "one-per-week"
	RuleOnePerMonth Rule = "one-per-month"
	RuleOnePerYear  Rule = "one-per-year"
	RuleOlderThan   Rule = "older-than"
	RuleSmartRemove Rule = "smart-remove"
	RuleFreeSpace   Rule = "free-space"
	RuleFreeInodes  Rule = "free-inodes"
	RuleUnmatched   Rule = "unmatched"
)

// Decision is the verdict for one snapshot.
type Decision struct {
	SID    snapshot.SID
	Action Action
	Rule   Rule
}

// Result partitions an SID list into kept and deleted snapshots.
// Both slices preserve the order of the evaluated input.
type Result struct {
	Keep   []Decision
	Delete []Decision
}

// KeepSet returns the kept SIDs as a set.
func (r Result) KeepSet() Set {
	s := make(Set, len(r.Keep))
	for _, d := range r.Keep {
		s.Add(d.SID)
	}
	return s
}

// DeleteSet returns the deleted SIDs as a set.
func (r Result) DeleteSet() Set {
	s := make(Set, len(r.Delete))
	for _, d := range r.Delete {
		s.Add(d.SID)
	}
	return s
}

// Kept returns the kept SIDs in input order.
func (r Result) Kept() []snapshot.SID {
	out := make([]snapshot.SID, 0, len(r.Keep))
	for _, d := range r.Keep {
		out = append(out, d.SID)
	}
	return out
}

// CountByRule tallies decisions per rule.
func (r Result) CountByRule() map[Rule]int {
	counts := make(map[Rule]int)
	for _, d := range r.Keep {
		counts[d.Rule]++
	}
	for _, d := range r.Delete {
		counts[d.Rule]++
	}
	return counts
}
