package sustainlib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidFolds is wrapped by the errors returned by ValidateFolds.
var ErrInvalidFolds = errors.New("sustainlib: invalid folds")

// FoldSubtype is the fit of one subtype count on one fold.
type FoldSubtype struct {
	SubtypeResult

	// HeldOut[m][i] is the likelihood of held-out subject m under sample i
	// of the chain.
	HeldOut [][]float64
}

// FoldResult holds the fits of one cross-validation fold.
type FoldResult struct {

	// Fold is the index of the fold in the fold list.
	Fold int

	// Test holds the held-out subjects.
	Test []int

	// Subtypes[j] is the fit with j+1 subtypes.
	Subtypes []FoldSubtype
}

// CrossValidate fits models with 1, ..., NSMax subtypes to the training
// subjects of each fold and samples their posterior on the held-out
// subjects.  folds[k] lists the held-out subjects of fold k.  If selectFolds
// is not empty, only the listed folds are run.  Each (fold, subtype count)
// fit is checkpointed under the fold's position in folds.
//
// Folds are not validated, see ValidateFolds.
func (s *Sustain) CrossValidate(ctx context.Context, folds [][]int, selectFolds []int) ([]FoldResult, error) {

	if len(selectFolds) == 0 {
		selectFolds = make([]int, len(folds))
		for k := range selectFolds {
			selectFolds[k] = k
		}
	}
	for _, k := range selectFolds {
		if k < 0 || k >= len(folds) {
			return nil, fmt.Errorf("%w: fold %d selected from %d folds", ErrInvalidFolds, k, len(folds))
		}
	}

	// The random stream of a fold depends only on its position in folds.
	sd := seeds(newRand(s.Config.Seed), len(folds))

	results := make([]FoldResult, len(selectFolds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Config.workers())
	for j, k := range selectFolds {
		j, k := j, k
		g.Go(func() error {
			res, err := s.crossValidateFold(gctx, k, folds[k], newRand(sd[k]))
			if err != nil {
				return fmt.Errorf("fold %d: %w", k, err)
			}
			results[j] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *Sustain) crossValidateFold(ctx context.Context, fold int, test []int, rng *rand.Rand) (FoldResult, error) {

	train := complement(s.data.NumSamples(), test)
	trainData := s.data.Reindex(train)
	testData := s.data.Reindex(test)

	s.logger.Info("cross-validating fold",
		slog.Int("fold", fold),
		slog.Int("train", len(train)),
		slog.Int("test", len(test)))

	sd := seeds(rng, s.Config.NSMax)

	fr := FoldResult{Fold: fold, Test: append([]int(nil), test...)}
	var prev Sample
	for ns := 1; ns <= s.Config.NSMax; ns++ {

		if err := ctx.Err(); err != nil {
			return fr, err
		}

		key := Key{Dataset: s.Config.Dataset, Subtypes: ns, Fold: fold}
		res, err := s.fitFold(ctx, trainData, testData, key, prev, newRand(sd[ns-1]))
		if errors.Is(err, ErrNoSplit) {
			s.logger.Warn("no subtype can be split, stopping",
				slog.Int("fold", fold),
				slog.Int("subtypes", ns))
			break
		}
		if err != nil {
			return fr, err
		}

		fr.Subtypes = append(fr.Subtypes, res)
		prev = res.EM
	}

	return fr, nil
}

// fitFold grows the train optimum prev by one subtype and samples the
// posterior of the held-out data from the grown optimum.
func (s *Sustain) fitFold(ctx context.Context, trainData, testData Data, key Key, prev Sample, rng *rand.Rand) (FoldSubtype, error) {

	if s.store != nil {
		cp, ok, err := s.store.Load(ctx, key)
		if err != nil {
			return FoldSubtype{}, fmt.Errorf("load checkpoint %s: %w", key, err)
		}
		if ok {
			s.logger.Info("using checkpoint", slog.String("key", key.String()))
			return FoldSubtype{
				SubtypeResult: SubtypeResult{
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
				},
				HeldOut: cp.HeldOut,
			}, nil
		}
	}

	grown, err := s.EstimateNPlus1(trainData, prev, rng)
	if err != nil {
		return FoldSubtype{}, err
	}

	seqSigma, fSigma := s.OptimiseMCMCSettings(testData, grown.ML.Sequence, grown.ML.Fraction, rng)
	mc := s.PerformMCMC(testData, grown.ML.Sequence, grown.ML.Fraction, s.Config.NIterMCMC, seqSigma, fSigma, rng)

	res := FoldSubtype{
		SubtypeResult: SubtypeResult{
			Subtypes: key.Subtypes,
			Prev:     prev,
			EM:       grown.ML,
			Starts:   grown.Starts,
			Skipped:  grown.Skipped,
			MCMC:     mc.ML,
			Chain:    mc.Chain,
			SeqSigma: seqSigma,
			FSigma:   fSigma,
		},
		HeldOut: s.EvaluateLikelihoodSamples(testData, mc.Chain),
	}

	if s.store != nil {
		cp := res.checkpoint(res.HeldOut)
		cp.Fold = key.Fold
		if err := s.store.Save(ctx, key, cp); err != nil {
			return res, fmt.Errorf("save checkpoint %s: %w", key, err)
		}
	}

	return res, nil
}

// EvaluateLikelihoodSamples returns the likelihood of every subject of data
// under every sample of the chain, as an M x iterations array.
func (s *Sustain) EvaluateLikelihoodSamples(data Data, chain *Chain) [][]float64 {

	out := makeFloatArray(data.NumSamples(), chain.Len())
	for i := 0; i < chain.Len(); i++ {
		lk := CalcLikelihood(data, s.model, chain.Sequence[i], chain.Fraction[i])
		for m, v := range lk.Subj {
			out[m][i] = v
		}
	}

	return out
}

// CVIC returns the cross-validation information criterion of each subtype
// count, -2 times the summed log of each held-out subject's likelihood
// averaged over the chain samples, pooled over folds.  It also returns
// loglike[k][j], the mean over chain samples of the held-out log-likelihood
// of fold k with j+1 subtypes.  Subtype counts not reached by every fold
// are omitted.
func CVIC(results []FoldResult) (cvic []float64, loglike [][]float64) {

	if len(results) == 0 {
		return nil, nil
	}

	nsMax := len(results[0].Subtypes)
	for _, fr := range results {
		if len(fr.Subtypes) < nsMax {
			nsMax = len(fr.Subtypes)
		}
	}

	cvic = make([]float64, nsMax)
	loglike = makeFloatArray(len(results), nsMax)
	for k, fr := range results {
		for j := 0; j < nsMax; j++ {
			heldOut := fr.Subtypes[j].HeldOut
			for _, row := range heldOut {
				var mean float64
				for _, v := range row {
					mean += v
				}
				mean /= float64(len(row))
				cvic[j] += math.Log(mean + logEps)
			}

			niter := 0
			if len(heldOut) > 0 {
				niter = len(heldOut[0])
			}
			var tot float64
			for i := 0; i < niter; i++ {
				for _, row := range heldOut {
					tot += math.Log(row[i] + logEps)
				}
			}
			if niter > 0 {
				loglike[k][j] = tot / float64(niter)
			}
		}
	}

	for j := range cvic {
		cvic[j] *= -2
	}

	return cvic, loglike
}

// FoldsFromLabels groups subjects by fold label.  Fold k holds the subjects
// labelled k.  Subjects with a negative label are not held out by any fold.
func FoldsFromLabels(labels []int) [][]int {

	nfold := 0
	for _, l := range labels {
		if l+1 > nfold {
			nfold = l + 1
		}
	}

	folds := make([][]int, nfold)
	for m, l := range labels {
		if l >= 0 {
			folds[l] = append(folds[l], m)
		}
	}

	return folds
}

// KFold randomly partitions the subjects 0, ..., n-1 into k folds of
// near-equal size.  The subjects of each fold are in increasing order.
func KFold(n, k int, rng *rand.Rand) [][]int {

	perm := rng.Perm(n)
	folds := make([][]int, k)
	for j := range folds {
		f := append([]int(nil), perm[j*n/k:(j+1)*n/k]...)
		sort.Ints(f)
		folds[j] = f
	}

	return folds
}

// ValidateFolds checks that the folds are non-empty, pairwise disjoint and
// together cover the subjects 0, ..., n-1.
func ValidateFolds(folds [][]int, n int) error {

	fold := make([]int, n)
	for m := range fold {
		fold[m] = -1
	}

	for k, f := range folds {
		if len(f) == 0 {
			return fmt.Errorf("%w: fold %d is empty", ErrInvalidFolds, k)
		}
		for _, m := range f {
			if m < 0 || m >= n {
				return fmt.Errorf("%w: fold %d holds subject %d, out of range [0, %d)", ErrInvalidFolds, k, m, n)
			}
			if fold[m] >= 0 {
				return fmt.Errorf("%w: subject %d is in folds %d and %d", ErrInvalidFolds, m, fold[m], k)
			}
			fold[m] = k
		}
	}

	for m, k := range fold {
		if k < 0 {
			return fmt.Errorf("%w: subject %d is in no fold", ErrInvalidFolds, m)
		}
	}

	return nil
}

// complement returns the subjects 0, ..., n-1 not in idx, in increasing
// order.
func complement(n int, idx []int) []int {

	in := make([]bool, n)
	for _, m := range idx {
		if m >= 0 && m < n {
			in[m] = true
		}
	}

	var out []int
	for m := 0; m < n; m++ {
		if !in[m] {
			out = append(out, m)
		}
	}

	return out
}
