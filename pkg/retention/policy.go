package retention

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// SizeUnit is the unit of the free space threshold.
type SizeUnit int

const (
	MiB SizeUnit = iota + 1
	GiB
)

var sizeUnitToString = map[SizeUnit]string{
	MiB: "MiB",
	GiB: "GiB",
}

var stringToSizeUnit = map[string]SizeUnit{}

func init() {
	stringToSizeUnit = util.InvertMap(sizeUnitToString)
}

// String returns the string representation of a SizeUnit.
func (u SizeUnit) String() string {
	if str, ok := sizeUnitToString[u]; ok {
		return str
	}
	return fmt.Sprintf("unknown_size_unit(%d)", u)
}

// Bytes returns the number of bytes in one unit.
func (u SizeUnit) Bytes() uint64 {
	switch u {
	case MiB:
		return 1 << 20
	case GiB:
		return 1 << 30
	default:
		return 0
	}
}

// ParseSizeUnit parses a string and returns the corresponding SizeUnit.
func ParseSizeUnit(s string) (SizeUnit, error) {
	if u, ok := stringToSizeUnit[s]; ok {
		return u, nil
	}
	return 0, fmt.Errorf("invalid size unit: %q. Must be 'MiB' or 'GiB'", s)
}

// MarshalJSON implements the json.Marshaler interface for SizeUnit.
func (u SizeUnit) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for SizeUnit.
func (u *SizeUnit) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("size unit should be a string, got %s", data)
	}
	parsed, err := ParseSizeUnit(str)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MaxFreeInodesPercent is the highest accepted free inode threshold.
const MaxFreeInodesPercent = 15

// RemoveOlderThan expires every snapshot older than a cutoff.
type RemoveOlderThan struct {
	Enabled bool
	Value   int
	Unit    Unit
}

// SmartRemove thins out history to a fixed number of representatives per period.
type SmartRemove struct {
	Enabled               bool
	KeepAllDays           int
	KeepOnePerDayDays     int
	KeepOnePerWeekWeeks   int
	KeepOnePerMonthMonths int
	KeepOnePerYear        bool
}

// MinFreeSpace evicts the oldest snapshots while the destination has less free space.
type MinFreeSpace struct {
	Enabled bool
	Value   int
	Unit    SizeUnit
}

// Bytes returns the threshold in bytes.
func (m MinFreeSpace) Bytes() uint64 {
	return uint64(max(m.Value, 0)) * m.Unit.Bytes()
}

// MinFreeInodes evicts the oldest snapshots while the destination has fewer free inodes.
type MinFreeInodes struct {
	Enabled bool
	Percent int
}

// Policy is the complete set of retention rules. Rules run in field order:
// remove-older-than, smart remove, free space, free inodes. The newest snapshot
// is always kept.
type Policy struct {
	RemoveOlderThan RemoveOlderThan
	SmartRemove     SmartRemove
	MinFreeSpace    MinFreeSpace
	MinFreeInodes   MinFreeInodes
	KeepNamed       bool
}

// Validate checks value ranges of the enabled rules.
func (p Policy) Validate() error {
	var errs []error
	if p.RemoveOlderThan.Enabled {
		if p.RemoveOlderThan.Value < 1 {
			errs = append(errs, fmt.Errorf("remove older than: value must be at least 1, got %d", p.RemoveOlderThan.Value))
		}
		if _, ok := unitToString[p.RemoveOlderThan.Unit]; !ok {
			errs = append(errs, fmt.Errorf("remove older than: invalid unit %s", p.RemoveOlderThan.Unit))
		}
	}
	if p.SmartRemove.Enabled {
		sr := p.SmartRemove
		if sr.KeepAllDays < 0 || sr.KeepOnePerDayDays < 0 || sr.KeepOnePerWeekWeeks < 0 || sr.KeepOnePerMonthMonths < 0 {
			errs = append(errs, errors.New("smart remove: counts cannot be negative"))
		}
	}
	if p.MinFreeSpace.Enabled {
		if p.MinFreeSpace.Value < 1 {
			errs = append(errs, fmt.Errorf("min free space: value must be at least 1, got %d", p.MinFreeSpace.Value))
		}
		if p.MinFreeSpace.Unit.Bytes() == 0 {
			errs = append(errs, fmt.Errorf("min free space: invalid unit %s", p.MinFreeSpace.Unit))
		}
	}
	if p.MinFreeInodes.Enabled && (p.MinFreeInodes.Percent < 0 || p.MinFreeInodes.Percent > MaxFreeInodesPercent) {
		errs = append(errs, fmt.Errorf("min free inodes: percent must be between 0 and %d, got %d", MaxFreeInodesPercent, p.MinFreeInodes.Percent))
	}
	return errors.Join(errs...)
}

// CapacityEnabled reports whether any capacity based rule is active.
func (p Policy) CapacityEnabled() bool {
	return p.MinFreeSpace.Enabled || p.MinFreeInodes.Enabled
}
