package plan

import (
	"context"

	"github.com/roach88/horizon/internal/engine"
	"github.com/roach88/horizon/internal/resource"
	"github.com/roach88/horizon/internal/simtime"
)

// Point is a typed view point.
type Point[R any] struct {
	Time    simtime.Time
	Written simtime.Dense
	Value   R
}

// SampleOf is Sample with static typing.
func SampleOf[W, R, S any](ctx context.Context, p *Plan, r *resource.Resource[W, R, S], at simtime.Time) (S, error) {
	v, err := p.Sample(ctx, r, at)
	if err != nil {
		var zero S
		return zero, err
	}
	return r.AsSample(v)
}

// ViewOf is View with static typing.
func ViewOf[W, R, S any](ctx context.Context, p *Plan, r *resource.Resource[W, R, S], from, to simtime.Time) ([]Point[R], error) {
	points, err := p.View(ctx, r, from, to)
	out := make([]Point[R], 0, len(points))
	for _, pt := range points {
		v, terr := r.AsRead(pt.Read)
		if terr != nil {
			return nil, engine.NewTypeMismatchError(r.Label(), terr)
		}
		out = append(out, Point[R]{Time: pt.Time, Written: pt.Written, Value: v})
	}
	return out, err
}
