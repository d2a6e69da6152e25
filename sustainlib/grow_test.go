package sustainlib_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshedden/sustain/sustainlib"
	"github.com/kshedden/sustain/sustainsim"
)

// Confirm that the log-likelihood is non-decreasing over the EM iterations,
// and that every visited state is valid.
func TestEMTraceNonDecreasing(t *testing.T) {

	for _, nbio := range []int{2, 4, 6} {
		for _, ns := range []int{1, 2, 3} {
			for seed := int64(1); seed <= 3; seed++ {

				p := sustainsim.Params{
					Sequence: make([][]int, ns),
					Fraction: make([]float64, ns),
					NSubject: 60,
					Shift:    2,
					Std:      1,
				}
				rng := rand.New(rand.NewSource(seed))
				for s := range p.Sequence {
					p.Sequence[s] = rng.Perm(nbio)
					p.Fraction[s] = 1 / float64(ns)
				}
				data := simulate(t, p, seed).Data()
				s := newSustain(t, data, smallConfig())

				seq := make([][]int, ns)
				for j := range seq {
					seq[j] = rng.Perm(nbio)
				}
				f := make([]float64, ns)
				for j := range f {
					f[j] = 1 / float64(ns)
				}

				res := s.PerformEM(data, seq, f, rng)
				require.NotEmpty(t, res.Trace)
				for i, x := range res.Trace {
					checkSample(t, x, ns, nbio)
					if i > 0 {
						assert.GreaterOrEqual(t, x.LogLike, res.Trace[i-1].LogLike, "iter=%d", i)
					}
				}
				assert.Equal(t, res.Trace[len(res.Trace)-1].LogLike, res.ML.LogLike)
			}
		}
	}
}

// A single subtype with two biomarkers is recovered exactly.
func TestGrowOneSubtype(t *testing.T) {

	p := sustainsim.Params{
		Sequence: [][]int{{1, 0}},
		Fraction: []float64{1},
		NSubject: 20,
		MinStage: 1,
		MaxStage: 2,
		Shift:    4,
		Std:      1,
	}
	data := simulate(t, p, 1).Data()
	s := newSustain(t, data, smallConfig())

	res, err := s.EstimateNPlus1(data, sustainlib.Sample{}, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	assert.Equal(t, [][]int{{1, 0}}, res.ML.Sequence)
	assert.Equal(t, []float64{1}, res.ML.Fraction)
	assert.Len(t, res.Starts, s.Config.NStartpoints)
	assert.Empty(t, res.Skipped)
	for _, x := range res.Starts {
		assert.LessOrEqual(t, x.LogLike, res.ML.LogLike)
	}
}

// Two subtypes with opposite orderings are separated.
func TestGrowTwoSubtypes(t *testing.T) {

	cohort := simulate(t, twoOrders, 1)
	data := cohort.Data()
	cfg := smallConfig()
	cfg.NStartpoints = 10
	s := newSustain(t, data, cfg)
	rng := rand.New(rand.NewSource(3))

	one, err := s.EstimateNPlus1(data, sustainlib.Sample{}, rng)
	require.NoError(t, err)
	checkSample(t, one.ML, 1, 4)

	two, err := s.EstimateNPlus1(data, one.ML, rng)
	require.NoError(t, err)
	checkSample(t, two.ML, 2, 4)
	assert.Greater(t, two.ML.LogLike, one.ML.LogLike)

	assert.ElementsMatch(t, twoOrders.Sequence, two.ML.Sequence)

	q, n := sustainsim.Accuracy(cohort.Subtype, mlSubtypes(data, two.ML), 2)
	assert.Equal(t, twoOrders.NSubject, n)
	assert.GreaterOrEqual(t, float64(q), 0.9*float64(n), "%d of %d correct", q, n)
}

// A subtype holding a single subject is not split, and the other subtype
// still is.
func TestGrowSkipsSingletonSubtype(t *testing.T) {

	base := sustainsim.Params{
		Sequence: [][]int{{0, 1, 2, 3}},
		Fraction: []float64{1},
		NSubject: 20,
		MinStage: 1,
		MaxStage: 3,
		Shift:    6,
		Std:      1,
	}
	odd := base
	odd.Sequence = [][]int{{3, 2, 1, 0}}
	odd.NSubject = 1
	odd.MaxStage = 1

	data := concat(t, simulate(t, base, 1), simulate(t, odd, 2))
	s := newSustain(t, data, smallConfig())

	prev := sustainlib.Sample{
		Sequence: [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}},
		Fraction: []float64{0.95, 0.05},
	}

	res, err := s.EstimateNPlus1(data, prev, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Skipped)
	checkSample(t, res.ML, 3, 4)
}

func TestGrowNoSplit(t *testing.T) {

	p := sustainsim.Params{
		Sequence: [][]int{{0, 1, 2}},
		Fraction: []float64{1},
		NSubject: 1,
		MinStage: 1,
		MaxStage: 1,
		Shift:    4,
		Std:      1,
	}
	data := simulate(t, p, 1).Data()
	s := newSustain(t, data, smallConfig())

	prev := sustainlib.Sample{Sequence: [][]int{{0, 1, 2}}, Fraction: []float64{1}}
	res, err := s.EstimateNPlus1(data, prev, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, sustainlib.ErrNoSplit)
	assert.Equal(t, []int{0}, res.Skipped)
}

// Runs with the same seed are identical for any number of workers.
func TestGrowDeterministic(t *testing.T) {

	data := simulate(t, twoOrders, 4).Data()

	var results []sustainlib.GrowResult
	for _, workers := range []int{1, 4} {
		cfg := smallConfig()
		cfg.Workers = workers
		s := newSustain(t, data, cfg)
		rng := rand.New(rand.NewSource(9))

		one, err := s.EstimateNPlus1(data, sustainlib.Sample{}, rng)
		require.NoError(t, err)
		two, err := s.EstimateNPlus1(data, one.ML, rng)
		require.NoError(t, err)
		results = append(results, two)
	}

	assert.Equal(t, results[0], results[1])
}
