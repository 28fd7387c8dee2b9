package tablestate

import (
	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
)

// ErrUpdaterWithoutState is returned when a function updater is resolved
// against a nil current value. Match it with errors.Is.
var ErrUpdaterWithoutState = tserrors.New("TS101")

// Updater is either a replacement value or a function of the current value.
// The zero Updater sets the zero value of T.
type Updater[T any] struct {
	value T
	fn    func(T) T
}

// Set returns an updater that replaces the current value with v.
func Set[T any](v T) Updater[T] {
	return Updater[T]{value: v}
}

// Update returns an updater that derives the next value from the current one.
func Update[T any](fn func(prev T) T) Updater[T] {
	return Updater[T]{fn: fn}
}

// IsFunc reports whether u derives its value from the current value.
func (u Updater[T]) IsFunc() bool {
	return u.fn != nil
}

// Resolve computes the next value. current may be nil for value updaters.
func (u Updater[T]) Resolve(current *T) (T, error) {
	if u.fn == nil {
		return u.value, nil
	}
	if current == nil {
		var zero T
		return zero, tserrors.New("TS101")
	}
	return u.fn(*current), nil
}
