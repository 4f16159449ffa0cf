// Package util contains misc internal utilities.
package util

import "cmp"

// Clamp restricts input to the closed interval [low, high].
func Clamp[T cmp.Ordered](input, low, high T) T {
	if input < low {
		return low
	}
	if input > high {
		return high
	}
	return input
}

// Limiter is a closed interval of permitted values, e.g. the soft travel
// limits of an axis.
type Limiter[T cmp.Ordered] struct {
	Min T `json:"min" yaml:"min"`
	Max T `json:"max" yaml:"max"`
}

// Check returns true if the value is allowed (within the limits).
func (l Limiter[T]) Check(value T) bool {
	return value >= l.Min && value <= l.Max
}

// Clamp moves value into the limits.
func (l Limiter[T]) Clamp(value T) T {
	return Clamp(value, l.Min, l.Max)
}

// Valid reports whether Min <= Max.
func (l Limiter[T]) Valid() bool {
	return l.Min <= l.Max
}
