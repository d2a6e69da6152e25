package sustainlib

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// EMResult is the outcome of one EM run.
type EMResult struct {

	// ML is the converged (sequence, fraction) pair.
	ML Sample

	// Trace holds the current state before the first step and after every
	// step.  Its log-likelihoods are non-decreasing.
	Trace []Sample
}

// MultiStartResult is the outcome of repeated EM runs.
type MultiStartResult struct {

	// ML is the best converged pair over all start points.
	ML Sample

	// Starts[i] is the converged pair of start point i.
	Starts []Sample
}

// PerformEM refines seq and f with the model's optimization step until the
// relative change in log-likelihood falls below TolEM, or MaxIterEM steps
// have been taken.  A candidate is adopted only if it improves the
// log-likelihood.
func (s *Sustain) PerformEM(data Data, seq [][]int, f []float64, rng *rand.Rand) EMResult {

	cur := Sample{
		Sequence: copyIntArray(seq),
		Fraction: copyFloats(f),
	}
	cur.LogLike = CalcLikelihood(data, s.model, cur.Sequence, cur.Fraction).LogLike

	trace := make([]Sample, 0, s.Config.MaxIterEM+1)
	trace = append(trace, cur.Copy())

	for iter := 0; iter < s.Config.MaxIterEM; iter++ {

		cseq, cf, cll := s.model.OptimiseParameters(data, cur.Sequence, cur.Fraction, rng)
		emSteps.Inc()

		converged := math.Abs((cll-cur.LogLike)/math.Max(cll, cur.LogLike)) < s.Config.TolEM
		if !converged && cll > cur.LogLike {
			cur = Sample{
				Sequence: copyIntArray(cseq),
				Fraction: copyFloats(cf),
				LogLike:  cll,
			}
			emAccepted.Inc()
		}
		trace = append(trace, cur.Copy())

		if converged {
			break
		}
	}
	emIterations.Observe(float64(len(trace) - 1))

	return EMResult{
		ML:    cur,
		Trace: trace,
	}
}

// multiStart runs EM from nstart starting points produced by init, each
// with its own random stream.  The run with the largest log-likelihood is
// returned; ties go to the lowest start index.
func (s *Sustain) multiStart(data Data, nstart int, rng *rand.Rand,
	init func(rng *rand.Rand) ([][]int, []float64)) MultiStartResult {

	sd := seeds(rng, nstart)
	results := make([]Sample, nstart)

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(s.Config.workers())
	for i := 0; i < nstart; i++ {
		i := i
		g.Go(func() error {
			r := newRand(sd[i])
			seq, f := init(r)
			results[i] = s.PerformEM(data, seq, f, r).ML
			s.logger.Debug("start point finished",
				slog.Int("startpoint", i),
				slog.Float64("loglike", results[i].LogLike))
			return nil
		})
	}
	_ = g.Wait()

	return MultiStartResult{
		ML:     results[bestSample(results)],
		Starts: results,
	}
}

// bestSample returns the index of the largest log-likelihood, preferring
// the first in case of ties.
func bestSample(x []Sample) int {

	j := 0
	for i := 1; i < len(x); i++ {
		if x[i].LogLike > x[j].LogLike {
			j = i
		}
	}

	return j
}
