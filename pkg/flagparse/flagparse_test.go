package flagparse

import (
	"testing"
)

// equalSlices is a helper to compare two string slices for equality.
func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}

func TestParseCmdList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Simple List", "cmd1,cmd2", []string{"cmd1", "cmd2"}},
		{"Empty String", "", nil},
		{"Quoted Item with Spaces", "'echo hello',cmd2", []string{"'echo hello'", "cmd2"}},
		{"Quoted Item with Comma", "'echo a,b',c", []string{"'echo a,b'", "c"}},
		{"Unmatched Quote", "'a,b", []string{"'a,b"}},
		{"Multiple Quoted Items", "'a b','c d'", []string{"'a b'", "'c d'"}},
		{"Double Quoted Item with Spaces", "\"item with spaces\",b", []string{"\"item with spaces\"", "b"}},
		{"Mixed Single and Double Quotes", "'a b',\"c,d\",e", []string{"'a b'", "\"c,d\"", "e"}},
		{"Nested Quotes", "'a \"b\" c',d", []string{"'a \"b\" c'", "d"}},
		{"Escaped Single Quote Inside Single Quotes", "'hello\\'world',next", []string{"'hello\\'world'", "next"}},
		{"Escaped Double Quote Inside Double Quotes", "\"hello\\\"world\",next", []string{"\"hello\\\"world\"", "next"}},
		{"Escaped Comma Outside Quotes", "a\\,b,c", []string{"a\\,b", "c"}},
		{"Escaped Backslash", "'a\\\\b',c", []string{"'a\\\\b'", "c"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := ParseCmdList(tc.input)

			if len(tc.expected) == 0 && len(result) == 0 {
				return
			}

			if !equalSlices(result, tc.expected) {
				t.Errorf("expected %v, but got %v", tc.expected, result)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	for _, name := range []string{"prune", "list", "init", "serve", "history", "version"} {
		c, err := ParseCommand(name)
		if err != nil {
			t.Fatalf("ParseCommand(%q) failed: %v", name, err)
		}
		if c.String() != name {
			t.Errorf("expected %q, got %q", name, c.String())
		}
	}
	for _, name := range []string{"none", "backup", ""} {
		if _, err := ParseCommand(name); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

func TestParse(t *testing.T) {
	t.Run("Only Set Flags Are Returned", func(t *testing.T) {
		cmd, flags, err := Parse([]string{"prune", "-base", "/repo", "-smart-remove", "-smart-keep-one-per-week", "8"})
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if cmd != Prune {
			t.Errorf("expected prune, got %v", cmd)
		}
		if len(flags) != 3 {
			t.Errorf("expected 3 flags, got %d: %v", len(flags), flags)
		}
		if flags["base"] != "/repo" || flags["smart-remove"] != true || flags["smart-keep-one-per-week"] != 8 {
			t.Errorf("unexpected flag values: %v", flags)
		}
		if _, ok := flags["keep-named"]; ok {
			t.Error("expected default flag values to be omitted")
		}
	})

	t.Run("Hooks Are Parsed Into Lists", func(t *testing.T) {
		_, flags, err := Parse([]string{"prune", "-pre-prune-hooks", "echo a,'echo b,c'"})
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		got, ok := flags["pre-prune-hooks"].([]string)
		if !ok || !equalSlices(got, []string{"echo a", "'echo b,c'"}) {
			t.Errorf("unexpected hook list: %v", flags["pre-prune-hooks"])
		}
	})

	t.Run("Flag Not Registered For Command", func(t *testing.T) {
		if _, _, err := Parse([]string{"history", "-sort", "asc"}); err == nil {
			t.Error("expected an error for a flag the history command does not define")
		}
	})

	t.Run("Version Has No Flags", func(t *testing.T) {
		cmd, flags, err := Parse([]string{"version"})
		if err != nil || cmd != Version || flags != nil {
			t.Errorf("unexpected result: %v %v %v", cmd, flags, err)
		}
	})

	t.Run("Unknown Command", func(t *testing.T) {
		if _, _, err := Parse([]string{"backup"}); err == nil {
			t.Error("expected error for unknown command")
		}
	})
}
