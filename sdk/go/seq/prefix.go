// Package seq holds small helpers for labelling and materializing the
// outputs of runnable nodes.
package seq

import "iter"

// Tagged pairs a value with the prefix it was emitted under.
type Tagged[T any] struct {
	Prefix string
	Value  T
}

// Prefix yields (prefix, v) for every v of s, in order. It buffers nothing
// and pulls s once per traversal, so it restarts exactly when s does.
func Prefix[T any](s iter.Seq[T], prefix string) iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for v := range s {
			if !yield(prefix, v) {
				return
			}
		}
	}
}

// Tag yields the values of s unchanged when prefix is nil, and
// Tagged[T]{*prefix, v} values otherwise.
func Tag[T any](s iter.Seq[T], prefix *string) iter.Seq[any] {
	if prefix == nil {
		return func(yield func(any) bool) {
			for v := range s {
				if !yield(v) {
					return
				}
			}
		}
	}
	p := *prefix
	return func(yield func(any) bool) {
		for v := range s {
			if !yield(Tagged[T]{Prefix: p, Value: v}) {
				return
			}
		}
	}
}
