package codec

import (
	"fmt"

	"github.com/MechWipf/lrpc/queue"
)

// RegisterSlice registers a codec for []E: a size prefix with the element
// count, then every element through r. E must already be registered when
// the codec is used.
func RegisterSlice[E any](r *Registry) TypeID {
	id, elem := TypeIDOf[[]E](), TypeIDOf[E]()
	r.Register(id, Of(
		func(q *queue.ByteQueue, v []E) error {
			q.PushSize(len(v))
			for i, e := range v {
				if err := r.Store(q, elem, e); err != nil {
					return fmt.Errorf("codec: store %s[%d]: %w", id, i, err)
				}
			}
			return nil
		},
		func(q *queue.ByteQueue) ([]E, error) {
			n := q.PopSize()
			// Every element carries at least its presence byte.
			out := make([]E, 0, min(n, q.Len()))
			for i := 0; i < n; i++ {
				if q.Len() == 0 {
					return nil, fmt.Errorf("%w: %s has %d of %d elements", ErrTruncated, id, i, n)
				}
				e, err := restoreAs[E](r, q, elem)
				if err != nil {
					return nil, fmt.Errorf("codec: restore %s[%d]: %w", id, i, err)
				}
				out = append(out, e)
			}
			return out, nil
		},
	))
	return id
}

// RegisterMap registers a codec for map[K]V: a size prefix with the entry
// count, then key and value pairs. Iteration order on the wire follows Go
// map iteration and is not stable.
func RegisterMap[K comparable, V any](r *Registry) TypeID {
	id, key, val := TypeIDOf[map[K]V](), TypeIDOf[K](), TypeIDOf[V]()
	r.Register(id, Of(
		func(q *queue.ByteQueue, m map[K]V) error {
			q.PushSize(len(m))
			for k, v := range m {
				if err := r.Store(q, key, k); err != nil {
					return fmt.Errorf("codec: store %s key: %w", id, err)
				}
				if err := r.Store(q, val, v); err != nil {
					return fmt.Errorf("codec: store %s[%v]: %w", id, k, err)
				}
			}
			return nil
		},
		func(q *queue.ByteQueue) (map[K]V, error) {
			n := q.PopSize()
			out := make(map[K]V, min(n, q.Len()/2))
			for i := 0; i < n; i++ {
				if q.Len() == 0 {
					return nil, fmt.Errorf("%w: %s has %d of %d entries", ErrTruncated, id, i, n)
				}
				k, err := restoreAs[K](r, q, key)
				if err != nil {
					return nil, fmt.Errorf("codec: restore %s key: %w", id, err)
				}
				v, err := restoreAs[V](r, q, val)
				if err != nil {
					return nil, fmt.Errorf("codec: restore %s[%v]: %w", id, k, err)
				}
				out[k] = v
			}
			return out, nil
		},
	))
	return id
}

func restoreAs[T any](r *Registry, q *queue.ByteQueue, id TypeID) (T, error) {
	var zero T
	x, err := r.Restore(q, id)
	if err != nil || x == nil {
		return zero, err
	}
	t, ok := x.(T)
	if !ok {
		return zero, fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, zero, x)
	}
	return t, nil
}
