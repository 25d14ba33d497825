package item

import (
	"fmt"
	"strings"
)

// Mode is the cardinality of an item type.
type Mode int

const (
	// Single items carry exactly one value and have at most one producer.
	Single Mode = iota
	// Multi items carry a list of values appended by any number of producers.
	Multi
	// Optional items carry at most one value. Consumers never require them.
	Optional
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Multi:
		return "multi"
	case Optional:
		return "optional"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts the textual form used in chain files into a Mode. The
// empty string means Single.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return Single, nil
	case "multi":
		return Multi, nil
	case "optional":
		return Optional, nil
	default:
		return Single, fmt.Errorf("unknown item mode %q: must be 'single', 'multi' or 'optional'", s)
	}
}
