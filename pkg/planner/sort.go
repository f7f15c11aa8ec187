package planner

import (
	"fmt"

	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// SortOrder is the display order of `list`. It only changes what is printed;
// retention is always evaluated newest first.
type SortOrder int

const (
	Desc SortOrder = iota // newest snapshot first
	Asc                   // oldest snapshot first
)

var sortOrderNames = map[SortOrder]string{
	Desc: "desc",
	Asc:  "asc",
}

var sortOrderByName = util.InvertMap(sortOrderNames)

func (s SortOrder) String() string {
	if name, ok := sortOrderNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown_sort_order(%d)", s)
}

// ParseSortOrder parses the value of the -sort flag.
func ParseSortOrder(s string) (SortOrder, error) {
	if order, ok := sortOrderByName[s]; ok {
		return order, nil
	}
	return Desc, fmt.Errorf("invalid sort order %q for snapshot listing: must be 'desc' or 'asc'", s)
}
