package grid

import (
	"math/rand/v2"

	"github.com/mcules/rfsweep/internal/models"
)

// Point is one hyperparameter combination for a single cross-validation run.
// MTry never exceeds TopN.
type Point struct {
	Model models.Model
	NTree int
	MTry  int
	TopN  int
}

type Bounds struct {
	TopNMin int
	TopNMax int
	MTryMin int
}

var DefaultBounds = Bounds{TopNMin: 2, TopNMax: 20, MTryMin: 2}

// NewRand returns the generator used for a sweep with the given seed, so that
// `rfsweep grid --seed N` prints the order `rfsweep run --seed N` executes.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Walk enumerates models × topn × mtry, shuffling each axis independently before
// descending into it. It stops at the first error returned by fn.
// The models slice is shuffled in place.
func Walk(ms []models.Model, ntree int, b Bounds, rng *rand.Rand, fn func(Point) error) error {
	shuffle(rng, ms)

	for _, m := range ms {
		topns := span(b.TopNMin, b.TopNMax)
		shuffle(rng, topns)

		for _, topn := range topns {
			mtrys := span(b.MTryMin, topn)
			shuffle(rng, mtrys)

			for _, mtry := range mtrys {
				if mtry > topn {
					continue
				}
				if err := fn(Point{Model: m, NTree: ntree, MTry: mtry, TopN: topn}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Points collects a walk over a copy of ms.
func Points(ms []models.Model, ntree int, b Bounds, rng *rand.Rand) []Point {
	cp := append([]models.Model(nil), ms...)
	out := make([]Point, 0, Count(len(cp), b))
	_ = Walk(cp, ntree, b, rng, func(p Point) error {
		out = append(out, p)
		return nil
	})
	return out
}

// Count is the number of points Walk visits for n models.
func Count(n int, b Bounds) int {
	per := 0
	for t := b.TopNMin; t <= b.TopNMax; t++ {
		if k := t - b.MTryMin + 1; k > 0 {
			per += k
		}
	}
	return n * per
}

func span(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

func shuffle[T any](rng *rand.Rand, s []T) {
	swap := func(i, j int) { s[i], s[j] = s[j], s[i] }
	if rng == nil {
		rand.Shuffle(len(s), swap)
		return
	}
	rng.Shuffle(len(s), swap)
}
