package sustainlib

import (
	"math/rand"

	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/stat"
)

const (
	// Starting perturbation scales of the first tuning pass
	seqSigmaStart = 1
	fSigmaStart   = 0.01

	// Tuned sequence scales are never allowed to go below this value
	minSeqSigma = 0.01
)

// Chain is the sequence of states visited by a Markov chain.
type Chain struct {

	// Sequence[i][s] is the sequence of subtype s at iteration i.
	Sequence [][][]int

	// Fraction[i][s] is the fraction of subtype s at iteration i.
	Fraction [][]float64

	// LogLike[i] is the log-likelihood at iteration i.
	LogLike []float64
}

// Len returns the number of iterations in the chain.
func (c *Chain) Len() int {
	return len(c.LogLike)
}

// NumSubtypes returns the number of subtypes sampled by the chain.
func (c *Chain) NumSubtypes() int {
	if len(c.Fraction) == 0 {
		return 0
	}
	return len(c.Fraction[0])
}

// At returns iteration i of the chain.  The returned sample shares memory
// with the chain and must not be modified.
func (c *Chain) At(i int) Sample {
	return Sample{
		Sequence: c.Sequence[i],
		Fraction: c.Fraction[i],
		LogLike:  c.LogLike[i],
	}
}

// MeanFraction returns the mean fraction of each subtype over the chain.
func (c *Chain) MeanFraction() []float64 {

	ns := c.NumSubtypes()
	mean := make([]float64, ns)
	col := make([]float64, c.Len())
	for s := 0; s < ns; s++ {
		for i := range col {
			col[i] = c.Fraction[i][s]
		}
		mean[s] = stat.Mean(col, nil)
	}

	return mean
}

func (c *Chain) append(x Sample) {
	c.Sequence = append(c.Sequence, copyIntArray(x.Sequence))
	c.Fraction = append(c.Fraction, copyFloats(x.Fraction))
	c.LogLike = append(c.LogLike, x.LogLike)
}

// MCMCResult is the outcome of one Markov chain run.
type MCMCResult struct {

	// ML is the state with the largest log-likelihood visited by the chain.
	ML Sample

	Chain *Chain
}

// PerformMCMC runs a Markov chain of n iterations starting from seq and f.
// The starting state is the first element of the chain.
func (s *Sustain) PerformMCMC(data Data, seq [][]int, f []float64, n int,
	seqSigma [][]float64, fSigma []float64, rng *rand.Rand) MCMCResult {

	return s.performMCMC(data, seq, f, n, seqSigma, fSigma, rng, phaseSample)
}

func (s *Sustain) performMCMC(data Data, seq [][]int, f []float64, n int,
	seqSigma [][]float64, fSigma []float64, rng *rand.Rand, phase string) MCMCResult {

	cur := Sample{
		Sequence: copyIntArray(seq),
		Fraction: copyFloats(f),
	}
	cur.LogLike = CalcLikelihood(data, s.model, cur.Sequence, cur.Fraction).LogLike

	chain := &Chain{
		Sequence: make([][][]int, 0, n),
		Fraction: make([][]float64, 0, n),
		LogLike:  make([]float64, 0, n),
	}
	chain.append(cur)
	ml := 0

	var bar *progressbar.ProgressBar
	if s.Config.Progress && phase == phaseSample {
		bar = progressbar.Default(int64(n), "mcmc")
		_ = bar.Add(1)
	}

	steps := mcmcSteps.WithLabelValues(phase)
	accepts := mcmcAccepted.WithLabelValues(phase)
	for i := 1; i < n; i++ {
		var acc bool
		cur, acc = s.model.MCMCStep(data, cur, seqSigma, fSigma, rng)
		steps.Inc()
		if acc {
			accepts.Inc()
		}

		chain.append(cur)
		if cur.LogLike > chain.LogLike[ml] {
			ml = i
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	return MCMCResult{
		ML:    chain.At(ml).Copy(),
		Chain: chain,
	}
}

// OptimiseMCMCSettings tunes the proposal scales over NTunePasses passes.
// Each pass runs a chain of NIterTune iterations at the current scales and
// re-estimates the scales from its samples.
func (s *Sustain) OptimiseMCMCSettings(data Data, seq [][]int, f []float64, rng *rand.Rand) ([][]float64, []float64) {

	ns := len(seq)
	n := data.NumStages()

	seqSigma := makeFloatArray(ns, n)
	for i := range seqSigma {
		for j := range seqSigma[i] {
			seqSigma[i][j] = seqSigmaStart
		}
	}
	fSigma := filledFloats(ns, fSigmaStart)

	for pass := 0; pass < s.Config.NTunePasses; pass++ {
		res := s.performMCMC(data, seq, f, s.Config.NIterTune, seqSigma, fSigma, rng, phaseTune)
		seqSigma, fSigma = TuneSigma(res.Chain)
	}

	return seqSigma, fSigma
}

// TuneSigma estimates proposal scales from a chain.  The sequence scale of
// a stage index is the sample standard deviation of its position across the
// chain, floored at 0.01.  The fraction scale of a subtype is the sample
// standard deviation of its fraction.
func TuneSigma(chain *Chain) ([][]float64, []float64) {

	ns := chain.NumSubtypes()
	niter := chain.Len()
	n := 0
	if niter > 0 && ns > 0 {
		n = len(chain.Sequence[0][0])
	}

	// pos[s][j][i] is the position of stage index j of subtype s at
	// iteration i.
	pos := make([][][]float64, ns)
	for s := range pos {
		pos[s] = makeFloatArray(n, niter)
	}
	for i := 0; i < niter; i++ {
		for s := 0; s < ns; s++ {
			for p, v := range chain.Sequence[i][s] {
				pos[s][v][i] = float64(p)
			}
		}
	}

	seqSigma := makeFloatArray(ns, n)
	for s := 0; s < ns; s++ {
		for j := 0; j < n; j++ {
			sd := stat.StdDev(pos[s][j], nil)
			if sd < minSeqSigma {
				sd = minSeqSigma
			}
			seqSigma[s][j] = sd
		}
	}

	fSigma := make([]float64, ns)
	col := make([]float64, niter)
	for s := 0; s < ns; s++ {
		for i := range col {
			col[i] = chain.Fraction[i][s]
		}
		fSigma[s] = stat.StdDev(col, nil)
	}

	return seqSigma, fSigma
}

// EstimateUncertainty tunes the proposal scales and then runs the
// production chain of NIterMCMC iterations from seq and f.
func (s *Sustain) EstimateUncertainty(data Data, seq [][]int, f []float64, rng *rand.Rand) MCMCResult {

	seqSigma, fSigma := s.OptimiseMCMCSettings(data, seq, f, rng)

	return s.PerformMCMC(data, seq, f, s.Config.NIterMCMC, seqSigma, fSigma, rng)
}
