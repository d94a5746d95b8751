package compiler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/horizon/internal/model"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		spec ModelSpec
		want []string
	}{
		{
			name: "valid",
			spec: ModelSpec{Resources: []ResourceSpec{
				{Name: "a", Kind: model.KindInt, Default: 2},
				{Name: "b.level", Kind: model.KindPoly, Default: 0.5},
			}},
		},
		{
			name: "empty",
			spec: ModelSpec{},
			want: []string{ErrEmptyModel},
		},
		{
			name: "bad name",
			spec: ModelSpec{Resources: []ResourceSpec{{Name: "1a", Kind: model.KindInt}}},
			want: []string{ErrInvalidName},
		},
		{
			name: "duplicate",
			spec: ModelSpec{Resources: []ResourceSpec{
				{Name: "a", Kind: model.KindInt},
				{Name: "a", Kind: model.KindFloat},
			}},
			want: []string{ErrDuplicateName},
		},
		{
			name: "kind and default",
			spec: ModelSpec{Resources: []ResourceSpec{
				{Name: "a", Kind: "bool"},
				{Name: "b", Kind: model.KindInt, Default: 0.5},
				{Name: "c", Kind: model.KindFloat, Default: math.Inf(1)},
			}},
			want: []string{ErrInvalidKind, ErrFractionalDefault, ErrNonFiniteDefault},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := Validate(&tc.spec)
			if tc.want == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tc.want, codes(errs))
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "resource.a", Message: "bad", Code: ErrInvalidName, Line: 3}
	assert.Equal(t, "[E101] line 3: resource.a: bad", e.Error())
	e.Line = 0
	assert.Equal(t, "[E101] resource.a: bad", e.Error())
}
