// Package codec maps type identifiers to the codecs that store values into a
// queue.ByteQueue and restore them back out.
//
// Every value written through a Registry is prefixed with a one-byte presence
// flag: 0 means absent (nil) and nothing follows, 1 means a value follows.
// Codecs themselves only encode the value bytes.
//
//	present:  ┌────┬──────────────────┐      absent:  ┌────┐
//	          │ 01 │ codec bytes ...  │               │ 00 │
//	          └────┴──────────────────┘               └────┘
//
// A Registry comes preloaded with the built-in primitive codecs. Composite
// types opt in explicitly through a Schema; slices and maps through
// RegisterSlice and RegisterMap.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/MechWipf/lrpc/queue"
)

var (
	ErrUnregistered = errors.New("codec: type is not registered")
	ErrTypeMismatch = errors.New("codec: value does not match codec type")
	ErrUntyped      = errors.New("codec: cannot infer type of untyped nil")
	ErrTruncated    = errors.New("codec: queue ended before the value")
)

// TypeID names a codec in a Registry. For Go types it is the
// reflect.Type string with pointers stripped, e.g. "int32" or "[]string".
type TypeID string

// Codec stores and restores the value bytes of one type.
type Codec interface {
	Store(q *queue.ByteQueue, v any) error
	Restore(q *queue.ByteQueue) (any, error)
}

type typed[T any] struct {
	store   func(q *queue.ByteQueue, v T) error
	restore func(q *queue.ByteQueue) (T, error)
}

func (c typed[T]) Store(q *queue.ByteQueue, v any) error {
	t, ok := v.(T)
	if !ok {
		var zero T
		return fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, zero, v)
	}
	return c.store(q, t)
}

func (c typed[T]) Restore(q *queue.ByteQueue) (any, error) {
	return c.restore(q)
}

// Of builds a Codec for T from a typed store/restore pair.
func Of[T any](store func(q *queue.ByteQueue, v T) error, restore func(q *queue.ByteQueue) (T, error)) Codec {
	return typed[T]{store: store, restore: restore}
}

// TypeIDOf returns the TypeID a Registry uses for T.
func TypeIDOf[T any]() TypeID {
	return typeID(reflect.TypeFor[T]())
}

func typeID(t reflect.Type) TypeID {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return TypeID(t.String())
}

// Registry is a set of codecs keyed by TypeID. Lookups take a read lock, so a
// registry may be shared by every connection once it is populated.
type Registry struct {
	mu     sync.RWMutex
	codecs map[TypeID]Codec
}

// NewRegistry returns a registry holding the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[TypeID]Codec)}
	registerBuiltins(r)
	return r
}

// Default is the process-wide registry. Populate it before serving.
var Default = NewRegistry()

// Register adds or replaces the codec for id.
func (r *Registry) Register(id TypeID, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[id] = c
}

// Lookup returns the codec registered for id.
func (r *Registry) Lookup(id TypeID) (Codec, error) {
	r.mu.RLock()
	c, ok := r.codecs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregistered, id)
	}
	return c, nil
}

// Store writes the presence flag and, unless v is nil or a nil pointer, the
// value encoded with the codec registered for id. Pointers are dereferenced
// once before encoding.
func (r *Registry) Store(q *queue.ByteQueue, id TypeID, v any) error {
	c, err := r.Lookup(id)
	if err != nil {
		return err
	}
	if v == nil {
		q.PushBool(false)
		return nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			q.PushBool(false)
			return nil
		}
		v = rv.Elem().Interface()
	}
	mark := q.Len()
	q.PushBool(true)
	if err := c.Store(q, v); err != nil {
		q.Truncate(mark)
		return err
	}
	return nil
}

// Restore reads a value written by Store. An absent value restores as nil.
func (r *Registry) Restore(q *queue.ByteQueue, id TypeID) (any, error) {
	c, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	if !q.PopBool() {
		return nil, nil
	}
	return c.Restore(q)
}

// Push stores v under the TypeID of its dynamic type.
func (r *Registry) Push(q *queue.ByteQueue, v any) error {
	if v == nil {
		return ErrUntyped
	}
	return r.Store(q, typeID(reflect.TypeOf(v)), v)
}

// Pop is Restore; it exists to pair with Push.
func (r *Registry) Pop(q *queue.ByteQueue, id TypeID) (any, error) {
	return r.Restore(q, id)
}

// Put stores v under TypeIDOf[T]. A nil pointer stores as absent.
func Put[T any](r *Registry, q *queue.ByteQueue, v T) error {
	return r.Store(q, TypeIDOf[T](), v)
}

// Get restores a T. It returns nil when the value was absent.
func Get[T any](r *Registry, q *queue.ByteQueue) (*T, error) {
	v, err := r.Restore(q, TypeIDOf[T]())
	if err != nil || v == nil {
		return nil, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, zero, v)
	}
	return &t, nil
}

// Register adds c to the Default registry.
func Register(id TypeID, c Codec) {
	Default.Register(id, c)
}
