package eventmodel

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/sustain/sustainlib"
)

// Model is the event-based stage likelihood model.  It has no state and is
// safe for concurrent use.
type Model struct{}

var _ sustainlib.Model = Model{}

func asData(data sustainlib.Data) *Data {
	d, ok := data.(*Data)
	if !ok {
		panic("eventmodel: data is not *eventmodel.Data")
	}
	return d
}

// InitialiseSequence returns a uniformly random ordering of the events.
func (Model) InitialiseSequence(data sustainlib.Data, rng *rand.Rand) []int {
	return rng.Perm(data.NumStages())
}

// StageLikelihood returns the likelihood of each subject's data at each
// stage of seq.  At stage k the first k events of seq have occurred and the
// remaining events have not.  All N+1 stages are equally likely a priori.
func (Model) StageLikelihood(data sustainlib.Data, seq []int) [][]float64 {

	d := asData(data)
	n := d.NumStages()
	prior := 1 / float64(n+1)

	out := make([][]float64, d.NumSamples())
	yes := make([]float64, n+1)
	no := make([]float64, n+1)
	for m := range out {
		lyes := d.LYes[m]
		lno := d.LNo[m]

		yes[0] = 1
		for k := 1; k <= n; k++ {
			yes[k] = yes[k-1] * lyes[seq[k-1]]
		}
		no[n] = 1
		for k := n - 1; k >= 0; k-- {
			no[k] = no[k+1] * lno[seq[k]]
		}

		row := make([]float64, n+1)
		for k := range row {
			row[k] = yes[k] * no[k] * prior
		}
		out[m] = row
	}

	return out
}

// OptimiseParameters updates the fractions to the mean subtype posterior,
// then visits the events of each subtype in random order and moves each to
// the position that maximizes the likelihood.  The fractions are updated
// again from the new sequences.
func (mod Model) OptimiseParameters(data sustainlib.Data, seq [][]int, f []float64, rng *rand.Rand) ([][]int, []float64, float64) {

	ns := len(seq)
	n := data.NumStages()

	sopt := make([][]int, ns)
	permk := make([][][]float64, ns)
	for s := range seq {
		sopt[s] = append([]int(nil), seq[s]...)
		permk[s] = mod.StageLikelihood(data, sopt[s])
	}

	fopt := updateFraction(sustainlib.CombineLikelihood(permk, f))

	cand := make([][][]float64, n)
	ll := make([]float64, n)
	for _, s := range rng.Perm(ns) {
		for _, ev := range rng.Perm(n) {

			from := 0
			for p, v := range sopt[s] {
				if v == ev {
					from = p
					break
				}
			}

			cur := permk[s]
			seqs := make([][]int, n)
			for to := 0; to < n; to++ {
				seqs[to] = sustainlib.MoveEvent(sopt[s], from, to)
				cand[to] = mod.StageLikelihood(data, seqs[to])
				permk[s] = cand[to]
				ll[to] = sustainlib.CombineLikelihood(permk, fopt).LogLike
			}
			permk[s] = cur

			best := floats.MaxIdx(ll)
			sopt[s] = seqs[best]
			permk[s] = cand[best]
		}
	}

	lk := sustainlib.CombineLikelihood(permk, fopt)
	fopt = updateFraction(lk)

	return sopt, fopt, sustainlib.CombineLikelihood(permk, fopt).LogLike
}

// updateFraction returns the mean over subjects of the subtype posterior.
// A cohort without subjects gives NaN fractions.
func updateFraction(lk *sustainlib.Likelihood) []float64 {

	ns := len(lk.PermK)
	f := make([]float64, ns)
	for m, row := range lk.Subtype {
		for s, v := range row {
			f[s] += v / lk.Subj[m]
		}
	}
	floats.Scale(1/floats.Sum(f), f)

	return f
}

// MCMCStep moves one randomly chosen event of every subtype, and perturbs
// the fractions.  An event at position p moves to position q with
// probability proportional to a Gaussian density in |p-q| whose scale is
// the event's entry of seqSigma.  The proposal is accepted with the
// Metropolis probability.
func (mod Model) MCMCStep(data sustainlib.Data, cur sustainlib.Sample, seqSigma [][]float64,
	fSigma []float64, rng *rand.Rand) (sustainlib.Sample, bool) {

	ns := cur.NumSubtypes()
	n := data.NumStages()

	next := cur.Copy()
	w := make([]float64, n)
	for _, s := range rng.Perm(ns) {

		from := rng.Intn(n)
		ev := next.Sequence[s][from]
		sigma := seqSigma[s][ev]

		for q := range w {
			d := float64(q-from) / sigma
			w[q] = math.Exp(-0.5 * d * d)
		}
		to := drawIndex(w, rng)

		next.Sequence[s] = sustainlib.MoveEvent(next.Sequence[s], from, to)
	}

	z := rng.NormFloat64()
	for s := range next.Fraction {
		next.Fraction[s] = math.Abs(next.Fraction[s] + fSigma[s]*z)
	}
	floats.Scale(1/floats.Sum(next.Fraction), next.Fraction)

	next.LogLike = sustainlib.CalcLikelihood(data, mod, next.Sequence, next.Fraction).LogLike

	if math.Exp(next.LogLike-cur.LogLike) < rng.Float64() {
		return cur, false
	}

	return next, true
}

// drawIndex returns i with probability proportional to w[i].
func drawIndex(w []float64, rng *rand.Rand) int {

	u := rng.Float64() * floats.Sum(w)
	var c float64
	for i, v := range w {
		c += v
		if u < c {
			return i
		}
	}

	return len(w) - 1
}
