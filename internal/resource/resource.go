package resource

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/roach88/horizon/internal/simtime"
)

// ID identifies a resource within one process.
type ID uint64

var nextID atomic.Uint64

// Handle is the type-erased view of a Resource used by the engine, the
// registry and persistence.
type Handle interface {
	ID() ID
	Label() string
	WriteType() string
	Continuous() bool

	// Default returns the resource-level initial value, if declared.
	Default() (any, bool)

	// ReadOf converts a stored write value into a read handle.
	ReadOf(w any, written simtime.Time) (any, error)
	// Evolve converts a read handle into a write value as of now.
	Evolve(r any, now simtime.Time) (any, error)
	// SampleOf converts a read handle into a sample as of now.
	SampleOf(r any, now simtime.Time) (any, error)
	// HashWrite hashes a write value. ok is false when the resource has no
	// value hasher.
	HashWrite(w any) (h uint64, ok bool, err error)

	Encode(w any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Resource is a typed resource declaration.
//
// Thread-safety: a Resource is immutable after New and safe for concurrent
// use.
type Resource[W, R, S any] struct {
	id         ID
	label      string
	writeType  string
	continuous bool

	hasDefault bool
	def        W

	hasher   func(W) uint64
	toRead   func(w W, written simtime.Time) R
	fromRead func(r R, now simtime.Time) W
	sample   func(r R, now simtime.Time) S
	encode   func(W) ([]byte, error)
	decode   func([]byte) (W, error)
}

// Option configures a Resource.
type Option[W any] func(*options[W])

type options[W any] struct {
	hasDefault bool
	def        W
	hasher     func(W) uint64
	noHasher   bool
	writeType  string
	continuous bool
	encode     func(W) ([]byte, error)
	decode     func([]byte) (W, error)
}

// WithDefault declares the value used when a plan supplies no explicit
// initial condition.
func WithDefault[W any](v W) Option[W] {
	return func(o *options[W]) {
		o.hasDefault = true
		o.def = v
	}
}

// WithHasher makes write values hashable. Hashable inputs contribute the
// hash of their value to structural hashes instead of their upstream's hash,
// so equal values reached by different histories share cache entries.
func WithHasher[W any](fn func(W) uint64) Option[W] {
	return func(o *options[W]) {
		o.hasher = fn
		o.noHasher = false
	}
}

// WithoutHasher disables value hashing, including any default hasher.
func WithoutHasher[W any]() Option[W] {
	return func(o *options[W]) {
		o.hasher = nil
		o.noHasher = true
	}
}

// WithWriteType sets the persistence key. Defaults to the label.
func WithWriteType[W any](writeType string) Option[W] {
	return func(o *options[W]) {
		o.writeType = writeType
	}
}

// Continuous marks the resource as continuously evolving between writes.
func Continuous[W any]() Option[W] {
	return func(o *options[W]) {
		o.continuous = true
	}
}

// WithCodec replaces the JSON codec used for persistence.
func WithCodec[W any](encode func(W) ([]byte, error), decode func([]byte) (W, error)) Option[W] {
	return func(o *options[W]) {
		o.encode = encode
		o.decode = decode
	}
}

// New declares a resource with an explicit data contract.
func New[W, R, S any](
	label string,
	toRead func(w W, written simtime.Time) R,
	fromRead func(r R, now simtime.Time) W,
	sample func(r R, now simtime.Time) S,
	opts ...Option[W],
) *Resource[W, R, S] {
	return build(label, toRead, fromRead, sample, nil, opts)
}

func build[W, R, S any](
	label string,
	toRead func(W, simtime.Time) R,
	fromRead func(R, simtime.Time) W,
	sample func(R, simtime.Time) S,
	defaultHasher func(W) uint64,
	opts []Option[W],
) *Resource[W, R, S] {
	o := options[W]{hasher: defaultHasher}
	for _, opt := range opts {
		opt(&o)
	}
	if o.writeType == "" {
		o.writeType = label
	}
	if o.encode == nil {
		o.encode = func(w W) ([]byte, error) { return json.Marshal(w) }
	}
	if o.decode == nil {
		o.decode = func(data []byte) (W, error) {
			var w W
			err := json.Unmarshal(data, &w)
			return w, err
		}
	}
	if o.noHasher {
		o.hasher = nil
	}
	return &Resource[W, R, S]{
		id:         ID(nextID.Add(1)),
		label:      label,
		writeType:  o.writeType,
		continuous: o.continuous,
		hasDefault: o.hasDefault,
		def:        o.def,
		hasher:     o.hasher,
		toRead:     toRead,
		fromRead:   fromRead,
		sample:     sample,
		encode:     o.encode,
		decode:     o.decode,
	}
}

func (r *Resource[W, R, S]) ID() ID            { return r.id }
func (r *Resource[W, R, S]) Label() string     { return r.label }
func (r *Resource[W, R, S]) WriteType() string { return r.writeType }
func (r *Resource[W, R, S]) Continuous() bool  { return r.continuous }
func (r *Resource[W, R, S]) String() string    { return r.label }

// Hashable reports whether write values carry a value hasher.
func (r *Resource[W, R, S]) Hashable() bool { return r.hasher != nil }

// DefaultValue returns the typed default.
func (r *Resource[W, R, S]) DefaultValue() (W, bool) {
	return r.def, r.hasDefault
}

// ToRead converts a write value into a read handle.
func (r *Resource[W, R, S]) ToRead(w W, written simtime.Time) R {
	return r.toRead(w, written)
}

// FromRead evolves a read handle into a write value as of now.
func (r *Resource[W, R, S]) FromRead(rd R, now simtime.Time) W {
	return r.fromRead(rd, now)
}

// Sample converts a read handle into a sample as of now.
func (r *Resource[W, R, S]) Sample(rd R, now simtime.Time) S {
	return r.sample(rd, now)
}

func (r *Resource[W, R, S]) Default() (any, bool) {
	if !r.hasDefault {
		return nil, false
	}
	return r.def, true
}

func (r *Resource[W, R, S]) ReadOf(w any, written simtime.Time) (any, error) {
	tw, err := r.AsWrite(w)
	if err != nil {
		return nil, err
	}
	return r.toRead(tw, written), nil
}

func (r *Resource[W, R, S]) Evolve(rd any, now simtime.Time) (any, error) {
	tr, err := r.AsRead(rd)
	if err != nil {
		return nil, err
	}
	return r.fromRead(tr, now), nil
}

func (r *Resource[W, R, S]) SampleOf(rd any, now simtime.Time) (any, error) {
	tr, err := r.AsRead(rd)
	if err != nil {
		return nil, err
	}
	return r.sample(tr, now), nil
}

func (r *Resource[W, R, S]) HashWrite(w any) (uint64, bool, error) {
	if r.hasher == nil {
		return 0, false, nil
	}
	tw, err := r.AsWrite(w)
	if err != nil {
		return 0, false, err
	}
	return r.hasher(tw), true, nil
}

func (r *Resource[W, R, S]) Encode(w any) ([]byte, error) {
	tw, err := r.AsWrite(w)
	if err != nil {
		return nil, err
	}
	data, err := r.encode(tw)
	if err != nil {
		return nil, fmt.Errorf("resource %q: encode: %w", r.label, err)
	}
	return data, nil
}

func (r *Resource[W, R, S]) Decode(data []byte) (any, error) {
	w, err := r.decode(data)
	if err != nil {
		return nil, fmt.Errorf("resource %q: decode: %w", r.label, err)
	}
	return w, nil
}

// AsWrite asserts v to the write type.
func (r *Resource[W, R, S]) AsWrite(v any) (W, error) {
	w, ok := v.(W)
	if !ok {
		return w, r.typeError("write", w, v)
	}
	return w, nil
}

// AsRead asserts v to the read type.
func (r *Resource[W, R, S]) AsRead(v any) (R, error) {
	rd, ok := v.(R)
	if !ok {
		return rd, r.typeError("read", rd, v)
	}
	return rd, nil
}

// AsSample asserts v to the sample type.
func (r *Resource[W, R, S]) AsSample(v any) (S, error) {
	s, ok := v.(S)
	if !ok {
		return s, r.typeError("sample", s, v)
	}
	return s, nil
}

func (r *Resource[W, R, S]) typeError(form string, want, got any) error {
	return &TypeError{
		Resource: r.label,
		Form:     form,
		Want:     fmt.Sprintf("%T", want),
		Got:      fmt.Sprintf("%T", got),
	}
}
