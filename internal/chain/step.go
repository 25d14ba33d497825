package chain

import (
	"context"

	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
)

// StepFunc is the body of a build step.
type StepFunc func(ctx context.Context, sc StepContext) error

// StepContext is a step's view of the running build. Records and reads are
// checked against the step's declarations.
type StepContext interface {
	// StepName returns the name of the running step.
	StepName() string
	// Record stores a value for an item the step produces.
	Record(id item.ID, value any) error
	// Read returns the values of an item the step consumes.
	Read(id item.ID) ([]any, error)
	// Status reports whether a consumed item was produced.
	Status(id item.ID) itemstore.Status
}

// ProduceKind qualifies a production.
type ProduceKind int

const (
	// Normal producers are always used.
	Normal ProduceKind = iota
	// Overridable producers are used only if the item has no normal producer.
	Overridable
	// Weak producers never pull the step into a pruned chain.
	Weak
)

func (k ProduceKind) String() string {
	switch k {
	case Overridable:
		return "overridable"
	case Weak:
		return "weak"
	default:
		return "normal"
	}
}

// Consumption is one consumed item of a step.
type Consumption struct {
	Item     item.ID
	Optional bool
}

// Required reports whether the consumer must not run without a value.
// Only single items can be required.
func (c Consumption) Required() bool {
	return !c.Optional && c.Item.Mode() == item.Single
}

// Production is one produced item of a step.
type Production struct {
	Item item.ID
	Kind ProduceKind
}

// StepInfo is the declaration of a build step.
type StepInfo struct {
	Name         string
	Consumes     []Consumption
	Produces     []Production
	NonEssential bool
	Fn           StepFunc
	// Annotations are free-form descriptive labels (handler name, argument
	// digest). They take part in the chain fingerprint.
	Annotations map[string]string
}

// consumption returns the declaration for id, if any.
func (s *StepInfo) consumption(id item.ID) (Consumption, bool) {
	for _, c := range s.Consumes {
		if c.Item == id {
			return c, true
		}
	}
	return Consumption{}, false
}

func (s *StepInfo) production(id item.ID) (Production, bool) {
	for _, p := range s.Produces {
		if p.Item == id {
			return p, true
		}
	}
	return Production{}, false
}

// StepBuilder collects the declaration of one step. Problems are kept and
// reported by Builder.Build.
type StepBuilder struct {
	parent   *Builder
	info     StepInfo
	problems []error
	done     bool
}

// Consumes declares required consumption of the given items. Consuming a
// multi or optional item never makes the step required to wait for a value.
func (sb *StepBuilder) Consumes(ids ...item.ID) *StepBuilder {
	for _, id := range ids {
		sb.consume(id, false)
	}
	return sb
}

// ConsumesOptional declares consumption of items the step can do without.
func (sb *StepBuilder) ConsumesOptional(ids ...item.ID) *StepBuilder {
	for _, id := range ids {
		sb.consume(id, true)
	}
	return sb
}

// Produces declares normal production of the given items.
func (sb *StepBuilder) Produces(ids ...item.ID) *StepBuilder {
	for _, id := range ids {
		sb.produce(id, Normal)
	}
	return sb
}

// ProducesOverridable declares production that gives way to normal
// producers of the same item.
func (sb *StepBuilder) ProducesOverridable(ids ...item.ID) *StepBuilder {
	for _, id := range ids {
		sb.produce(id, Overridable)
	}
	return sb
}

// ProducesWeak declares production that does not pull this step into a chain
// pruned to its final items.
func (sb *StepBuilder) ProducesWeak(ids ...item.ID) *StepBuilder {
	for _, id := range ids {
		sb.produce(id, Weak)
	}
	return sb
}

// NonEssential marks the step as allowed to fail without failing the build.
func (sb *StepBuilder) NonEssential() *StepBuilder {
	sb.info.NonEssential = true
	return sb
}

// Annotate attaches a descriptive label to the step.
func (sb *StepBuilder) Annotate(key, value string) *StepBuilder {
	if sb.info.Annotations == nil {
		sb.info.Annotations = make(map[string]string)
	}
	sb.info.Annotations[key] = value
	return sb
}

// Declaration returns the step as declared so far.
func (sb *StepBuilder) Declaration() StepInfo {
	return sb.info
}

// Register adds the step to its builder. Calling Register twice is a no-op.
func (sb *StepBuilder) Register() {
	if sb.done {
		return
	}
	sb.done = true
	sb.parent.register(sb)
}

func (sb *StepBuilder) consume(id item.ID, optional bool) {
	if !sb.parent.known(id) {
		sb.problems = append(sb.problems, problemf(ErrUnknownItem, "step %q consumes undeclared item %q", sb.info.Name, id.Name()))
		return
	}
	for i, c := range sb.info.Consumes {
		if c.Item == id {
			// Required consumption wins over optional.
			sb.info.Consumes[i].Optional = c.Optional && optional
			return
		}
	}
	if id.Mode() == item.Optional {
		optional = true
	}
	sb.info.Consumes = append(sb.info.Consumes, Consumption{Item: id, Optional: optional})
}

func (sb *StepBuilder) produce(id item.ID, kind ProduceKind) {
	if !sb.parent.known(id) {
		sb.problems = append(sb.problems, problemf(ErrUnknownItem, "step %q produces undeclared item %q", sb.info.Name, id.Name()))
		return
	}
	for _, p := range sb.info.Produces {
		if p.Item != id {
			continue
		}
		if p.Kind != kind {
			sb.problems = append(sb.problems, problemf(ErrConflictingDeclaration,
				"step %q produces %s both as %s and %s", sb.info.Name, id, p.Kind, kind))
		}
		return
	}
	sb.info.Produces = append(sb.info.Produces, Production{Item: id, Kind: kind})
}
