package seq

import (
	"context"
	"iter"
)

// Gather drains src into a slice in production order. If src yields an
// error, the items collected so far are dropped and the error is returned
// as is. Cancellation of ctx is checked between elements.
func Gather[T any](ctx context.Context, src iter.Seq2[T, error]) ([]T, error) {
	out := []T{}
	for v, err := range src {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GatherPending waits for pending to produce a source, then drains it.
func GatherPending[T any](ctx context.Context, pending func(context.Context) (iter.Seq2[T, error], error)) ([]T, error) {
	src, err := pending(ctx)
	if err != nil {
		return nil, err
	}
	return Gather(ctx, src)
}

// FromSeq lifts an infallible sequence to a gatherable source.
func FromSeq[T any](s iter.Seq[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v := range s {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// FromSlice is FromSeq over a slice.
func FromSlice[T any](items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, v := range items {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// FromChan yields values received from ch until it is closed. It blocks
// between elements and stops with ctx.Err() if ctx is done first.
func FromChan[T any](ctx context.Context, ch <-chan T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			select {
			case <-ctx.Done():
				var zero T
				yield(zero, ctx.Err())
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}
