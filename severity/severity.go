package severity

import (
	"fmt"
	"strings"
)

// Severity is the ordinal outcome of an accident.
//
// The constants are declared in ascending order and the numeric value is the
// ordering used by Reconcile. A new level must be inserted at its ordinal
// position, not appended.
type Severity int

const (
	Slight Severity = iota
	Serious
	Fatal
)

var severityNames = [...]string{
	Slight:  "Slight",
	Serious: "Serious",
	Fatal:   "Fatal",
}

// Severities lists every level from least to most severe.
func Severities() []Severity {
	return []Severity{Slight, Serious, Fatal}
}

// Valid reports whether s is a declared level.
func (s Severity) Valid() bool {
	return s >= Slight && s <= Fatal
}

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity converts a label such as "Serious" into a Severity.
// Matching ignores case and surrounding whitespace.
func ParseSeverity(label string) (Severity, error) {
	label = strings.TrimSpace(label)
	for _, s := range Severities() {
		if strings.EqualFold(severityNames[s], label) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown severity label %q", label)
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
