package models

// Outcome is the result of a whole-fleet fetch. A non-nil Cause means the
// upstream could not be read and Items is empty; it is never an empty success.
type Outcome[T any] struct {
	Items []T
	Cause error
}

// Ok wraps items in an available outcome.
func Ok[T any](items []T) Outcome[T] {
	if items == nil {
		items = make([]T, 0)
	}
	return Outcome[T]{Items: items}
}

// Unavailable wraps cause in an outcome with no items.
func Unavailable[T any](cause error) Outcome[T] {
	return Outcome[T]{Items: make([]T, 0), Cause: cause}
}

// Available reports whether the upstream answered.
func (o Outcome[T]) Available() bool {
	return o.Cause == nil
}
