// Package state defines the merge combinators that resolve concurrent
// writes to shared pipeline state. Each state field declares exactly one
// combinator; after a parallel stage completes, proposals from its branches
// are reduced pairwise before the next stage reads the field.
package state

// Option is an explicit tri-state for current-item pointers: unset,
// present-but-cleared, or present with a value. Pipeline steps clear the
// pointer when they run past the end of their input, and concurrent
// (re)initialization must not erase a live value, so the distinction
// between "never written" and "written empty" is load-bearing.
type Option[T any] struct {
	value T
	valid bool
}

// Some returns an Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, valid: true}
}

// None returns the unset Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the held value and whether one is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.valid
}

// IsSet reports whether a value is present.
func (o Option[T]) IsSet() bool {
	return o.valid
}
