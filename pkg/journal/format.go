package journal

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// Format is the compression of a journal file.
type Format string

const (
	Zst Format = "zst"
	Gz  Format = "gz"
)

var formatToString = map[Format]string{
	Zst: "zst",
	Gz:  "gz",
}

var stringToFormat map[string]Format

func init() {
	stringToFormat = util.InvertMap(formatToString)
}

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_journal_format(%s)", string(f))
}

// Ext returns the file extension including the JSON lines suffix.
func (f Format) Ext() string {
	return ".jsonl." + f.String()
}

func ParseFormat(s string) (Format, error) {
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid journal format: %q. Must be 'zst' or 'gz'", s)
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Format.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("journal format should be a string, got %s", data)
	}
	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}
