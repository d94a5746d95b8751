package resource

import (
	"reflect"

	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/simtime"
)

// Discrete declares a resource whose value holds still between writes.
// Write, read and sample forms are all T.
//
// Integer, string and boolean kinds are hashable by default. Floats and
// composite kinds are not; pass WithHasher to opt in.
func Discrete[T any](label string, opts ...Option[T]) *Resource[T, T, T] {
	identity := func(v T, _ simtime.Time) T { return v }
	return build(label, identity, identity, identity, scalarHasher[T](), opts)
}

// scalarHasher returns a value hasher for scalar kinds, or nil.
func scalarHasher[T any]() func(T) uint64 {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v T) uint64 {
			return ir.NewHasher(ir.DomainValue).Int64(reflect.ValueOf(v).Int()).Sum64()
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(v T) uint64 {
			return ir.NewHasher(ir.DomainValue).Uint64(reflect.ValueOf(v).Uint()).Sum64()
		}
	case reflect.String:
		return func(v T) uint64 {
			return ir.NewHasher(ir.DomainValue).String(reflect.ValueOf(v).String()).Sum64()
		}
	case reflect.Bool:
		return func(v T) uint64 {
			var b uint64
			if reflect.ValueOf(v).Bool() {
				b = 1
			}
			return ir.NewHasher(ir.DomainValue).Uint64(b).Sum64()
		}
	}
	return nil
}
