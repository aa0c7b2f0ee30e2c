package updater

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// AnomalyClass groups non-fatal problems found during a cycle.
type AnomalyClass int

const (
	// IntegrityGap: the directory named an index that does not hold the
	// element's skeleton. The element is inserted fresh.
	IntegrityGap AnomalyClass = iota
	// AmbiguousPlacement: members too far apart for a compound index.
	// The element is stored at the wide scan index.
	AmbiguousPlacement
	// UnresolvedReference: a member with no current position. The element
	// is stored with its member list as given.
	UnresolvedReference
)

func (c AnomalyClass) String() string {
	switch c {
	case IntegrityGap:
		return "integrity_gap"
	case AmbiguousPlacement:
		return "ambiguous_placement"
	case UnresolvedReference:
		return "unresolved_reference"
	}
	return fmt.Sprintf("anomaly(%d)", int(c))
}

// Anomaly is one reported problem.
type Anomaly struct {
	Class  AnomalyClass
	Kind   element.Kind
	ID     element.ID
	Detail string
}

// Report aggregates the anomalies of a cycle.
type Report struct {
	Anomalies []Anomaly
}

func (r *Report) add(class AnomalyClass, kind element.Kind, id element.ID, format string, args ...any) {
	r.Anomalies = append(r.Anomalies, Anomaly{
		Class:  class,
		Kind:   kind,
		ID:     id,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Count returns the number of anomalies of a class.
func (r *Report) Count(class AnomalyClass) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, a := range r.Anomalies {
		if a.Class == class {
			n++
		}
	}
	return n
}

// Len returns the total number of anomalies.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Anomalies)
}

// Merge appends the anomalies of o.
func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}
	r.Anomalies = append(r.Anomalies, o.Anomalies...)
}

// Log writes a summary at Info and each anomaly at Warn.
func (r *Report) Log(log *zap.Logger) {
	if r.Len() == 0 {
		return
	}
	log.Info("Cycle anomalies",
		zap.Int("integrity_gaps", r.Count(IntegrityGap)),
		zap.Int("ambiguous", r.Count(AmbiguousPlacement)),
		zap.Int("unresolved", r.Count(UnresolvedReference)))
	for _, a := range r.Anomalies {
		log.Warn("Anomaly",
			zap.Stringer("class", a.Class),
			zap.Stringer("kind", a.Kind),
			zap.Uint64("id", uint64(a.ID)),
			zap.String("detail", a.Detail))
	}
}
