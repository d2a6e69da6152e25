package sustainlib

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// logEps is added to each subject's total probability before taking the
// logarithm, so that underflow does not yield -Inf.
const logEps = 1e-250

// Likelihood holds the aggregates of one mixture likelihood evaluation.
type Likelihood struct {

	// LogLike is the total log-likelihood over subjects.
	LogLike float64

	// Subj[m] is the total probability of subject m.
	Subj []float64

	// Stage[m][k] is the probability of subject m at stage k, summed over
	// subtypes.
	Stage [][]float64

	// Subtype[m][s] is the probability of subject m in subtype s, summed
	// over stages.
	Subtype [][]float64

	// PermK[s][m][k] is the unweighted probability of subject m's data at
	// stage k of subtype s, as returned by the model.
	PermK [][][]float64
}

// CalcLikelihood evaluates the mixture likelihood of the sequences seq with
// mixture weights f.
func CalcLikelihood(data Data, model Model, seq [][]int, f []float64) *Likelihood {

	ns := len(seq)
	if len(f) != ns {
		panic("CalcLikelihood: len(f) != number of sequences")
	}

	permk := make([][][]float64, ns)
	for s := range seq {
		permk[s] = model.StageLikelihood(data, seq[s])
	}

	return combineLikelihood(data.NumSamples(), data.NumStages(), permk, f)
}

// combineLikelihood forms the mixture aggregates from per-subtype stage
// likelihoods.  Models that update one subtype at a time use it to avoid
// recomputing the other subtypes.
func combineLikelihood(m, n int, permk [][][]float64, f []float64) *Likelihood {

	ns := len(permk)
	lk := &Likelihood{
		Subj:    make([]float64, m),
		Stage:   makeFloatArray(m, n+1),
		Subtype: makeFloatArray(m, ns),
		PermK:   permk,
	}

	for j := 0; j < m; j++ {
		stage := lk.Stage[j]
		for s := 0; s < ns; s++ {
			row := permk[s][j]
			var tot float64
			for k, p := range row {
				w := p * f[s]
				stage[k] += w
				tot += w
			}
			lk.Subtype[j][s] = tot
		}
		lk.Subj[j] = floats.Sum(stage)
		lk.LogLike += math.Log(lk.Subj[j] + logEps)
	}

	return lk
}

// CombineLikelihood forms the mixture aggregates from precomputed
// per-subtype stage likelihoods permk[s][m][k].
func CombineLikelihood(permk [][][]float64, f []float64) *Likelihood {

	if len(permk) == 0 || len(permk) != len(f) {
		panic("CombineLikelihood: len(permk) != len(f)")
	}

	m := len(permk[0])
	n := 0
	if m > 0 {
		n = len(permk[0][0]) - 1
	}

	return combineLikelihood(m, n, permk, f)
}

// SubtypeStage returns the joint probability of subject m being at stage k
// of subtype s, as an M x (N+1) x N_S array.
func (lk *Likelihood) SubtypeStage(f []float64) [][][]float64 {

	m := len(lk.Subj)
	ns := len(lk.PermK)
	out := make([][][]float64, m)
	for j := 0; j < m; j++ {
		nk := len(lk.Stage[j])
		out[j] = makeFloatArray(nk, ns)
		for k := 0; k < nk; k++ {
			for s := 0; s < ns; s++ {
				out[j][k][s] = lk.PermK[s][j][k] * f[s]
			}
		}
	}

	return out
}
