package chain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for the kinds of configuration problems. Every problem inside a
// *ConfigError wraps exactly one of them.
var (
	ErrCycle                  = errors.New("dependency cycle")
	ErrAmbiguousProducer      = errors.New("multiple producers")
	ErrUnresolvedConsumer     = errors.New("no producer for required item")
	ErrSelfLoop               = errors.New("step consumes its own product")
	ErrDuplicateStep          = errors.New("duplicate step")
	ErrProducedInitial        = errors.New("initial item produced by a step")
	ErrUnknownItem            = errors.New("undeclared item")
	ErrConflictingDeclaration = errors.New("conflicting declaration")
	ErrInvalidStep            = errors.New("invalid step")
)

// ConfigError aggregates every problem found while building a chain.
type ConfigError struct {
	Problems []error
}

func (e *ConfigError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = "- " + strings.ReplaceAll(p.Error(), "\n", "\n  ")
	}
	return fmt.Sprintf("build chain has %d configuration problem(s):\n%s", len(e.Problems), strings.Join(lines, "\n"))
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *ConfigError) Unwrap() []error { return e.Problems }

// CycleProblem describes one dependency cycle.
type CycleProblem struct {
	// Steps holds every member of the cycle, sorted.
	Steps []string
	// Path is one closed walk through the cycle, as "step produced item"
	// hops ending at the starting step.
	Path []Hop
}

// Hop is one edge of a cycle path.
type Hop struct {
	Step string
	Item string
}

func (p *CycleProblem) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s between steps [%s]", ErrCycle, strings.Join(p.Steps, ", "))
	if len(p.Path) > 0 {
		for _, h := range p.Path {
			fmt.Fprintf(&b, "\n%s produced %s to", h.Step, h.Item)
		}
		fmt.Fprintf(&b, "\n%s", p.Path[0].Step)
	}
	return b.String()
}

func (p *CycleProblem) Unwrap() error { return ErrCycle }

func problemf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
