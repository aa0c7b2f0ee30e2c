package spatial

// State tags the variant held by a Position.
type State uint8

const (
	// StateDeleted positions mean the element has no location any more.
	// It is the zero value.
	StateDeleted State = iota
	// StateConcrete positions hold a storable index.
	StateConcrete
	// StateAmbiguous positions could not be reduced to a single index.
	StateAmbiguous
)

// Position is the target placement of a staged element version.
type Position struct {
	state State
	index Index
}

// At returns a concrete position. The reserved values map to their variants.
func At(idx Index) Position {
	switch idx {
	case DeletedValue:
		return Position{state: StateDeleted}
	case AmbiguousValue:
		return Position{state: StateAmbiguous}
	}
	return Position{state: StateConcrete, index: idx}
}

// Gone returns the deleted position.
func Gone() Position {
	return Position{state: StateDeleted}
}

// Ambiguous returns the ambiguous position.
func Ambiguous() Position {
	return Position{state: StateAmbiguous}
}

// State returns the variant of the position.
func (p Position) State() State { return p.state }

// IsDeleted reports whether the position means "delete this element".
func (p Position) IsDeleted() bool { return p.state == StateDeleted }

// IsAmbiguous reports whether the position needs an explicit wide scan.
func (p Position) IsAmbiguous() bool { return p.state == StateAmbiguous }

// Index returns the concrete index, if any.
func (p Position) Index() (Index, bool) {
	return p.index, p.state == StateConcrete
}

// Stored is the index under which the element is persisted: ambiguous
// positions fall back to WideScan, deleted ones to DeletedValue.
func (p Position) Stored() Index {
	switch p.state {
	case StateConcrete:
		return p.index
	case StateAmbiguous:
		return WideScan
	}
	return DeletedValue
}

func (p Position) String() string {
	switch p.state {
	case StateDeleted:
		return "deleted"
	case StateAmbiguous:
		return "ambiguous"
	}
	return p.index.String()
}
