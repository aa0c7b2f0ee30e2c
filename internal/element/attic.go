package element

// Lesser is implemented by every record kept in an ordered set.
type Lesser[T any] interface {
	Less(T) bool
}

// Attic is a superseded record together with the timestamp (unix seconds)
// until which it was the current version.
type Attic[T Lesser[T]] struct {
	Elem  T     `json:"elem"`
	Until int64 `json:"until"`
}

// NewAttic wraps a record retired at until.
func NewAttic[T Lesser[T]](elem T, until int64) Attic[T] {
	return Attic[T]{Elem: elem, Until: until}
}

// Less orders by the wrapped record, then by the end of validity.
func (a Attic[T]) Less(o Attic[T]) bool {
	if a.Elem.Less(o.Elem) {
		return true
	}
	if o.Elem.Less(a.Elem) {
		return false
	}
	return a.Until < o.Until
}
