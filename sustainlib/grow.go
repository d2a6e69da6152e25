package sustainlib

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// ErrNoSplit is returned by EstimateNPlus1 when every subtype of the
// previous model has too few subjects to be split.
var ErrNoSplit = errors.New("sustainlib: no subtype can be split")

// GrowResult is the maximum likelihood model for one subtype count.
type GrowResult struct {

	// ML is the best (sequence, fraction) pair found.
	ML Sample

	// Starts holds the converged pair of every start point of the winning
	// optimization.
	Starts []Sample

	// Skipped lists the previous subtypes that had at most one assigned
	// subject and were not split.
	Skipped []int
}

// EstimateNPlus1 fits a model with one more subtype than prev.  If prev is
// empty, a single subtype model is fit from random sequences.  Otherwise,
// subjects are hard-assigned to the subtypes of prev, each subtype with more
// than one subject is split in two, and the mixture initialised from each
// split is optimized.  The best split wins; ties keep the first.
func (s *Sustain) EstimateNPlus1(data Data, prev Sample, rng *rand.Rand) (GrowResult, error) {

	ns := prev.NumSubtypes() + 1

	if ns == 1 {
		s.logger.Info("finding ML solution to 1 cluster problem")
		ms := s.FindML(data, rng)
		s.logger.Info("overall ML likelihood", slog.Float64("loglike", ms.ML.LogLike))
		return GrowResult{ML: ms.ML, Starts: ms.Starts}, nil
	}

	cluster := s.assignClusters(data, prev)

	members := make([][]int, ns-1)
	for m, c := range cluster {
		if c >= 0 {
			members[c] = append(members[c], m)
		}
	}

	sd := seeds(rng, ns-1)
	results := make([]*MultiStartResult, ns-1)
	var skipped []int

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(s.Config.workers())
	for c := 0; c < ns-1; c++ {

		if len(members[c]) <= 1 {
			s.logger.Info("cluster too small for subdivision",
				slog.Int("cluster", c+1),
				slog.Int("of", ns-1),
				slog.Int("subjects", len(members[c])))
			splitsSkipped.Inc()
			skipped = append(skipped, c)
			continue
		}

		c := c
		g.Go(func() error {
			s.logger.Info("splitting cluster", slog.Int("cluster", c+1), slog.Int("of", ns-1))
			r := newRand(sd[c])

			split := s.FindMLMixture2(data.Reindex(members[c]), r)

			// The two halves replace subtype c: the first in place, the
			// second appended after the existing subtypes.
			seqInit := copyIntArray(prev.Sequence)
			copy(seqInit[c], split.ML.Sequence[0])
			seqInit = append(seqInit, append([]int(nil), split.ML.Sequence[1]...))

			res := s.FindMLMixture(data, seqInit, uniformFraction(ns), r)
			s.logger.Info("split ML likelihood",
				slog.Int("cluster", c+1),
				slog.Float64("loglike", res.ML.LogLike))
			results[c] = &res
			return nil
		})
	}
	_ = g.Wait()

	var best *MultiStartResult
	ll := math.Inf(-1)
	for _, res := range results {
		if res != nil && res.ML.LogLike > ll {
			ll = res.ML.LogLike
			best = res
		}
	}

	if best == nil {
		return GrowResult{Skipped: skipped}, ErrNoSplit
	}

	s.logger.Info("overall ML likelihood", slog.Int("subtypes", ns), slog.Float64("loglike", ll))

	return GrowResult{
		ML:      best.ML,
		Starts:  best.Starts,
		Skipped: skipped,
	}, nil
}

// assignClusters assigns each subject to the subtype of prev with the
// largest posterior probability, breaking ties by the lowest index.
// Subjects whose posterior is undefined go to the first undefined entry.
func (s *Sustain) assignClusters(data Data, prev Sample) []int {

	lk := CalcLikelihood(data, s.model, prev.Sequence, prev.Fraction)

	cluster := make([]int, data.NumSamples())
	for m := range cluster {
		p := copyFloats(lk.Subtype[m])
		normalizeSum(p)
		cluster[m] = clusterArgmax(p)
	}

	return cluster
}

// clusterArgmax is argmax, except that the first NaN in x wins.
func clusterArgmax(x []float64) int {

	for i, v := range x {
		if math.IsNaN(v) {
			return i
		}
	}

	return argmax(x)
}

// FindML fits a single subtype model from NStartpoints random sequences.
func (s *Sustain) FindML(data Data, rng *rand.Rand) MultiStartResult {

	return s.multiStart(data, s.Config.NStartpoints, rng, func(r *rand.Rand) ([][]int, []float64) {
		return [][]int{s.model.InitialiseSequence(data, r)}, []float64{1}
	})
}

// FindMLMixture2 fits a two subtype model.  Each start point randomly
// partitions the subjects into two clusters, fits a single sequence to each
// cluster, and optimizes the two subtype mixture from those sequences.
func (s *Sustain) FindMLMixture2(data Data, rng *rand.Rand) MultiStartResult {

	const ns = 2

	return s.multiStart(data, s.Config.NStartpoints, rng, func(r *rand.Rand) ([][]int, []float64) {

		cluster := randomClusters(data.NumSamples(), ns, r)

		seqInit := make([][]int, ns)
		for c := 0; c < ns; c++ {
			var idx []int
			for m, cl := range cluster {
				if cl == c {
					idx = append(idx, m)
				}
			}
			init := s.model.InitialiseSequence(data, r)
			res := s.PerformEM(data.Reindex(idx), [][]int{init}, []float64{1}, r)
			seqInit[c] = res.ML.Sequence[0]
		}

		return seqInit, uniformFraction(ns)
	})
}

// randomClusters assigns m subjects uniformly at random to ns clusters,
// redrawing while the minimum cluster size is zero.
//
// Only the size of the last cluster enters the minimum, so the other
// clusters may come out empty.  An empty cluster yields an EM fit on no
// subjects, which leaves its random initial sequence unchanged.
func randomClusters(m, ns int, rng *rand.Rand) []int {

	cluster := make([]int, m)
	for {
		for j := range cluster {
			cluster[j] = rng.Intn(ns)
		}

		var n int
		for c := 0; c < ns; c++ {
			n = 0
			for _, cl := range cluster {
				if cl == c {
					n++
				}
			}
		}

		if n > 0 || m == 0 {
			return cluster
		}
	}
}

// FindMLMixture optimizes a mixture from the given initialisation,
// repeating the optimization NStartpoints times.
func (s *Sustain) FindMLMixture(data Data, seqInit [][]int, fInit []float64, rng *rand.Rand) MultiStartResult {

	return s.multiStart(data, s.Config.NStartpoints, rng, func(*rand.Rand) ([][]int, []float64) {
		return copyIntArray(seqInit), copyFloats(fInit)
	})
}
