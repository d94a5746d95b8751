package compiler

import (
	"cmp"
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/horizon/internal/model"
	"github.com/roach88/horizon/internal/resource"
)

//go:embed schema.cue
var schemaCUE string

// ResourceSpec is one declared resource.
type ResourceSpec struct {
	Name    string
	Kind    model.Kind
	Default float64
	Doc     string
	Pos     token.Pos
}

// ModelSpec is a compiled resource model.
type ModelSpec struct {
	Resources []ResourceSpec
}

// CompileModel parses a CUE value holding a resource model:
//
//	resource: battery: {kind: "float", default: 100}
//	resource: mode:    {kind: "int"}
//
// The value is unified with the built-in schema first, so kind typos and
// stray fields are reported with their position. Resources come back
// sorted by name.
func CompileModel(v cue.Value) (*ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal schema: %w", err)
	}
	v = schema.LookupPath(cue.ParsePath("#Model")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ModelSpec{}
	resVal := v.LookupPath(cue.ParsePath("resource"))
	if !resVal.Exists() {
		return spec, nil
	}
	iter, err := resVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		r, err := compileResource(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Resources = append(spec.Resources, r)
	}
	slices.SortFunc(spec.Resources, func(a, b ResourceSpec) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return spec, nil
}

func compileResource(name string, v cue.Value) (ResourceSpec, error) {
	r := ResourceSpec{Name: name, Pos: v.Pos()}

	kindStr, err := v.LookupPath(cue.ParsePath("kind")).String()
	if err != nil {
		return r, formatCUEError(err)
	}
	if r.Kind, err = model.ParseKind(kindStr); err != nil {
		return r, &CompileError{Field: "resource." + name + ".kind", Message: err.Error(), Pos: v.Pos()}
	}

	if def := v.LookupPath(cue.ParsePath("default")); def.Exists() {
		if r.Default, err = def.Float64(); err != nil {
			return r, formatCUEError(err)
		}
	}
	if doc := v.LookupPath(cue.ParsePath("doc")); doc.Exists() {
		if r.Doc, err = doc.String(); err != nil {
			return r, formatCUEError(err)
		}
	}
	return r, nil
}

// CompileString compiles a model from CUE source. filename is used in
// error positions.
func CompileString(src, filename string) (*ModelSpec, error) {
	ctx := cuecontext.New()
	return CompileModel(ctx.CompileString(src, cue.Filename(filename)))
}

// LoadModel compiles a model from a .cue file or a directory of them.
func LoadModel(path string) (*ModelSpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load model: %w", err)
		}
		return CompileString(string(src), path)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load model: no CUE instances in %s", path)
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	return CompileModel(cuecontext.New().BuildInstance(instances[0]))
}

// Registry declares every resource of the model.
func (m *ModelSpec) Registry() (*resource.Registry, error) {
	if errs := Validate(m); len(errs) > 0 {
		return nil, errs[0]
	}
	reg, err := resource.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, r := range m.Resources {
		h, err := model.New(r.Kind, r.Name, r.Default)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) == 0 {
		return err
	}
	// Prefer a position in the user's files over one in the schema.
	pos := positions[0]
	for _, p := range positions {
		if p.Filename() != "schema.cue" {
			pos = p
			break
		}
	}
	return &CompileError{
		Field:   "cue",
		Message: first.Error(),
		Pos:     pos,
	}
}
