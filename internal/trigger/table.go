package trigger

import (
	"sort"
	"strings"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
)

// #region table
// Table maps dotted trigger names to codes. It is immutable after construction.
type Table struct {
	codes map[string]Code
	names map[Code]string
}

// NewTable validates entries: names must be non-empty, codes non-zero and unique.
func NewTable(entries map[string]Code) (*Table, error) {
	t := &Table{
		codes: make(map[string]Code, len(entries)),
		names: make(map[Code]string, len(entries)),
	}
	for name, code := range entries {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, experr.Configf("trigger name is empty")
		}
		if code == 0 {
			return nil, experr.Configf("trigger %q uses reserved code 0", name)
		}
		if prev, dup := t.names[code]; dup {
			return nil, experr.Configf("trigger code %d used by both %q and %q", code, prev, name)
		}
		t.codes[name] = code
		t.names[code] = name
	}
	return t, nil
}

// DefaultTable is the frequency-tagging paradigm's code layout.
// 20s are query outcomes, 30s two-word conditions, 40s one-word conditions.
func DefaultTable() *Table {
	t, err := NewTable(map[string]Code{
		StateEnd:   10,
		TrialEnd:   11,
		BlockEnd:   12,
		ITI:        13,
		Fixation:   14,
		Break:      15,
		InterBlock: 16,
		Abort:      17,
		Error:      18,
		ExpEnd:     255,
		QueryTrue:  20,
		QueryFalse: 21,

		"TWOWORD.PHRASE.F1LEFT":     30,
		"TWOWORD.PHRASE.F1RIGHT":    31,
		"TWOWORD.NONPHRASE.F1LEFT":  32,
		"TWOWORD.NONPHRASE.F1RIGHT": 33,
		"TWOWORD.NONWORD.F1LEFT":    34,
		"TWOWORD.NONWORD.F1RIGHT":   35,

		"ONEWORD.WORD.F1":    40,
		"ONEWORD.WORD.F2":    41,
		"ONEWORD.NONWORD.F1": 42,
		"ONEWORD.NONWORD.F2": 43,

		Mask: 50,
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Code looks up a name. Unknown names are configuration errors.
func (t *Table) Code(name string) (Code, error) {
	c, ok := t.codes[name]
	if !ok {
		return 0, experr.Configf("unknown trigger %q", name)
	}
	return c, nil
}

// Lookup joins parts with dots and resolves the result.
func (t *Table) Lookup(parts ...string) (Code, error) {
	return t.Code(strings.Join(parts, "."))
}

// Name is the reverse lookup; ok is false for unassigned codes.
func (t *Table) Name(c Code) (string, bool) {
	n, ok := t.names[c]
	return n, ok
}

// Names lists every name in sorted order.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.codes))
	for n := range t.codes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// #endregion table
