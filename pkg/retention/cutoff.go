package retention

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// Unit is the unit of the remove-older-than rule.
type Unit int

const (
	UnitDay Unit = iota + 1
	UnitWeek
	UnitYear
)

var unitToString = map[Unit]string{
	UnitDay:  "day",
	UnitWeek: "week",
	UnitYear: "year",
}

var stringToUnit = map[string]Unit{}

func init() {
	stringToUnit = util.InvertMap(unitToString)
}

// String returns the string representation of a Unit.
func (u Unit) String() string {
	if str, ok := unitToString[u]; ok {
		return str
	}
	return fmt.Sprintf("unknown_unit(%d)", u)
}

// ParseUnit parses a string and returns the corresponding Unit.
func ParseUnit(s string) (Unit, error) {
	if u, ok := stringToUnit[s]; ok {
		return u, nil
	}
	return 0, fmt.Errorf("invalid age unit: %q. Must be 'day', 'week' or 'year'", s)
}

// MarshalJSON implements the json.Marshaler interface for Unit.
func (u Unit) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Unit.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("unit should be a string, got %s", data)
	}
	parsed, err := ParseUnit(str)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Epoch is the earliest date a cutoff can take. No snapshot is older than Epoch.
var Epoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// RemoveOlderThanDate returns the cutoff of the remove-older-than rule:
// snapshots strictly older than the returned date are expired.
//
//   - day:  today minus value days.
//   - week: the Monday value complete weeks before the current week.
//   - year: the 1st of the month value*12 months before the current month.
//
// The current incomplete week or month is never counted. An unknown unit
// yields Epoch, which expires nothing.
func RemoveOlderThanDate(today time.Time, value int, unit Unit) time.Time {
	switch unit {
	case UnitDay:
		return DateOf(today).AddDate(0, 0, -value)
	case UnitWeek:
		return WeekStart(today).AddDate(0, 0, -7*value)
	case UnitYear:
		return MonthStart(today).AddDate(0, -12*value, 0)
	default:
		return Epoch
	}
}
