package sustainlib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
)

// SubtypeResult is the fit of one subtype count.
type SubtypeResult struct {

	// Subtypes is the number of subtypes.
	Subtypes int

	// Prev is the optimum with one fewer subtype that was split.
	Prev Sample

	// EM is the maximum likelihood optimum found by the grower.
	EM Sample

	// Starts holds the converged pair of each start point of the winning
	// optimization.  It is empty for results read from a checkpoint.
	Starts []Sample

	// Skipped lists the subtypes of Prev too small to be split.
	Skipped []int

	// MCMC is the best state of the production chain.
	MCMC Sample

	// Chain is the production chain.
	Chain *Chain

	// SeqSigma and FSigma are the tuned proposal scales.
	SeqSigma [][]float64
	FSigma   []float64

	// Assign holds the subject assignments.
	Assign Assignments

	// Cached is true if the fit was read from the store.
	Cached bool
}

// Run fits models with 1, ..., NSMax subtypes to the cohort.  Each subtype
// count grows the previous optimum by one subtype, samples the posterior
// and assigns subjects.  Completed subtype counts are checkpointed in the
// store and reused on later runs.  Growth stops early if no subtype can be
// split.
func (s *Sustain) Run(ctx context.Context) ([]SubtypeResult, error) {

	sd := seeds(newRand(s.Config.Seed), s.Config.NSMax)

	var results []SubtypeResult
	var prev Sample
	for ns := 1; ns <= s.Config.NSMax; ns++ {

		if err := ctx.Err(); err != nil {
			return results, err
		}

		key := Key{Dataset: s.Config.Dataset, Subtypes: ns, Fold: FullData}
		res, err := s.fitSubtypes(ctx, s.data, key, prev, newRand(sd[ns-1]))
		if errors.Is(err, ErrNoSplit) {
			s.logger.Warn("no subtype can be split, stopping", slog.Int("subtypes", ns))
			break
		}
		if err != nil {
			return results, err
		}

		if !res.Cached || res.Assign.Subtype == nil {
			res.Assign = s.SubtypeAndStage(s.data, res.Chain, s.Config.NSamplesAssign)
		}

		if !res.Cached && s.store != nil {
			if err := s.store.Save(ctx, key, res.checkpoint(nil)); err != nil {
				return results, fmt.Errorf("save checkpoint %s: %w", key, err)
			}
		}

		if s.reporter != nil {
			if err := s.reporter.Report(ns, res.Chain); err != nil {
				return results, fmt.Errorf("report %d subtypes: %w", ns, err)
			}
		}

		results = append(results, res)
		prev = res.EM
	}

	return results, nil
}

// fitSubtypes loads the checkpoint for key, or grows prev by one subtype
// on data and samples the posterior from the grown optimum.
func (s *Sustain) fitSubtypes(ctx context.Context, data Data, key Key, prev Sample, rng *rand.Rand) (SubtypeResult, error) {

	if s.store != nil {
		cp, ok, err := s.store.Load(ctx, key)
		if err != nil {
			return SubtypeResult{}, fmt.Errorf("load checkpoint %s: %w", key, err)
		}
		if ok {
			s.logger.Info("using checkpoint", slog.String("key", key.String()))
			res := SubtypeResult{
				Subtypes: cp.Subtypes,
				Prev:     cp.Prev,
				EM:       cp.EM,
				Starts:   cp.Starts,
				Skipped:  cp.Skipped,
				MCMC:     cp.MCMC,
				Chain:    cp.Chain,
				SeqSigma: cp.SeqSigma,
				FSigma:   cp.FSigma,
				Cached:   true,
			}
			if cp.Assign != nil {
				res.Assign = *cp.Assign
			}
			return res, nil
		}
		s.logger.Info("no checkpoint found, fitting", slog.String("key", key.String()))
	}

	grown, err := s.EstimateNPlus1(data, prev, rng)
	if err != nil {
		return SubtypeResult{Skipped: grown.Skipped}, err
	}

	seqSigma, fSigma := s.OptimiseMCMCSettings(data, grown.ML.Sequence, grown.ML.Fraction, rng)
	mc := s.PerformMCMC(data, grown.ML.Sequence, grown.ML.Fraction, s.Config.NIterMCMC, seqSigma, fSigma, rng)

	return SubtypeResult{
		Subtypes: key.Subtypes,
		Prev:     prev,
		EM:       grown.ML,
		Starts:   grown.Starts,
		Skipped:  grown.Skipped,
		MCMC:     mc.ML,
		Chain:    mc.Chain,
		SeqSigma: seqSigma,
		FSigma:   fSigma,
	}, nil
}

func (r *SubtypeResult) checkpoint(heldOut [][]float64) *Checkpoint {

	cp := &Checkpoint{
		Subtypes: r.Subtypes,
		Prev:     r.Prev,
		EM:       r.EM,
		Starts:   r.Starts,
		Skipped:  r.Skipped,
		MCMC:     r.MCMC,
		Chain:    r.Chain,
		SeqSigma: r.SeqSigma,
		FSigma:   r.FSigma,
		HeldOut:  heldOut,
		Fold:     FullData,
	}
	if heldOut == nil {
		a := r.Assign
		cp.Assign = &a
	}

	return cp
}
