package codec

import (
	"fmt"

	"github.com/MechWipf/lrpc/queue"
)

type field[T any] struct {
	name    string
	store   func(r *Registry, q *queue.ByteQueue, v *T) error
	restore func(r *Registry, q *queue.ByteQueue, v *T) error
}

// Schema describes a composite type as an ordered list of fields. Each field
// is written through the registry with its own presence flag and codec, in
// the order the fields were declared. Restoring starts from the zero value
// of T and sets the fields in the same order.
//
//	type Point struct{ X, Y int32; Label *string }
//
//	s := codec.NewSchema[Point]()
//	codec.Field(s, "X", func(p *Point) int32 { return p.X }, func(p *Point, v int32) { p.X = v })
//	codec.Field(s, "Y", func(p *Point) int32 { return p.Y }, func(p *Point, v int32) { p.Y = v })
//	codec.OptionalField(s, "Label", func(p *Point) *string { return p.Label }, func(p *Point, v *string) { p.Label = v })
//	s.Register(codec.Default)
type Schema[T any] struct {
	fields []field[T]
}

func NewSchema[T any]() *Schema[T] {
	return &Schema[T]{}
}

// Field appends a field of type F. F must not be a pointer type; use
// OptionalField for fields that may be absent. An absent value on the wire
// restores as the zero F.
func Field[T, F any](s *Schema[T], name string, get func(*T) F, set func(*T, F)) *Schema[T] {
	id := TypeIDOf[F]()
	s.fields = append(s.fields, field[T]{
		name: name,
		store: func(r *Registry, q *queue.ByteQueue, v *T) error {
			return r.Store(q, id, get(v))
		},
		restore: func(r *Registry, q *queue.ByteQueue, v *T) error {
			x, err := r.Restore(q, id)
			if err != nil {
				return err
			}
			if x == nil {
				var zero F
				set(v, zero)
				return nil
			}
			f, ok := x.(F)
			if !ok {
				return fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, f, x)
			}
			set(v, f)
			return nil
		},
	})
	return s
}

// OptionalField appends a field held by pointer. A nil pointer is written
// as absent and restores as nil.
func OptionalField[T, F any](s *Schema[T], name string, get func(*T) *F, set func(*T, *F)) *Schema[T] {
	id := TypeIDOf[F]()
	s.fields = append(s.fields, field[T]{
		name: name,
		store: func(r *Registry, q *queue.ByteQueue, v *T) error {
			return r.Store(q, id, get(v))
		},
		restore: func(r *Registry, q *queue.ByteQueue, v *T) error {
			x, err := r.Restore(q, id)
			if err != nil {
				return err
			}
			if x == nil {
				set(v, nil)
				return nil
			}
			f, ok := x.(F)
			if !ok {
				return fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, f, x)
			}
			set(v, &f)
			return nil
		},
	})
	return s
}

// Fields lists the field names in wire order.
func (s *Schema[T]) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// Codec binds the schema to r, which resolves the field codecs.
func (s *Schema[T]) Codec(r *Registry) Codec {
	return Of(
		func(q *queue.ByteQueue, v T) error {
			for _, f := range s.fields {
				if err := f.store(r, q, &v); err != nil {
					return fmt.Errorf("codec: store %T.%s: %w", v, f.name, err)
				}
			}
			return nil
		},
		func(q *queue.ByteQueue) (T, error) {
			var v T
			for _, f := range s.fields {
				if err := f.restore(r, q, &v); err != nil {
					return v, fmt.Errorf("codec: restore %T.%s: %w", v, f.name, err)
				}
			}
			return v, nil
		},
	)
}

// Register adds the schema codec to r under TypeIDOf[T].
func (s *Schema[T]) Register(r *Registry) TypeID {
	id := TypeIDOf[T]()
	r.Register(id, s.Codec(r))
	return id
}
