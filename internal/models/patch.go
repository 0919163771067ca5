package models

// Patch carries an optional field of a partial update: Set distinguishes
// "field supplied" from "field untouched", so clearing a nullable column
// (Set with the zero/nil value) is different from omitting it. This replaces
// the UNSET-sentinel trick some trackers use.
type Patch[T any] struct {
	Value T
	Set   bool
}

// SetTo returns a Patch holding v.
func SetTo[T any](v T) Patch[T] {
	return Patch[T]{Value: v, Set: true}
}

// Unset returns a Patch representing an omitted field.
func Unset[T any]() Patch[T] {
	return Patch[T]{}
}
