package sustainlib

import (
	"math"
	"sort"
)

// Assignments holds the posterior subtype and stage of every subject.
// Subtype labels are positions in Order, that is subtypes are numbered by
// decreasing mean fraction over the chain.
type Assignments struct {

	// Subtype[m] is the most probable subtype of subject m, or NaN if its
	// posterior is undefined.
	Subtype []float64

	// SubtypeProb[m] is the posterior probability of Subtype[m].
	SubtypeProb []float64

	// Stage[m] is the most probable stage of subject m within Subtype[m],
	// or NaN.
	Stage []float64

	// StageProb[m] is the joint posterior probability of Stage[m] and
	// Subtype[m].
	StageProb []float64

	// ProbSubtype[m][s] is the averaged posterior of subtype s.
	ProbSubtype [][]float64

	// ProbStage[m][k] is the averaged posterior of stage k, marginal over
	// subtypes.
	ProbStage [][]float64

	// ProbSubtypeStage[m][k][s] is the averaged joint posterior of stage k
	// and subtype s.
	ProbSubtypeStage [][][]float64

	// Order[s] is the chain subtype given label s.
	Order []int
}

// SubtypeOrder returns the chain subtypes sorted by decreasing mean
// fraction.  Subtypes with equal mean fractions appear in reverse index
// order.
func SubtypeOrder(chain *Chain) []int {

	mf := chain.MeanFraction()
	ix := make([]int, len(mf))
	for i := range ix {
		ix[i] = i
	}
	sort.SliceStable(ix, func(i, j int) bool {
		return mf[ix[i]] < mf[ix[j]]
	})

	for i, j := 0, len(ix)-1; i < j; i, j = i+1, j-1 {
		ix[i], ix[j] = ix[j], ix[i]
	}

	return ix
}

// ThinIndices returns n evenly spaced iteration numbers in a chain of
// length niter, rounding half to even.
func ThinIndices(niter, n int) []int {

	idx := make([]int, n)
	if n == 1 {
		return idx
	}

	stop := float64(niter - 1)
	step := stop / float64(n-1)
	for i := range idx {
		v := float64(i) * step
		if i == n-1 {
			v = stop
		}
		idx[i] = int(math.RoundToEven(v))
	}

	return idx
}

// SubtypeAndStage assigns each subject of data to a subtype and stage by
// averaging the posterior over nSamples evenly spaced draws of the chain.
// Posteriors that cannot be normalized give NaN assignments.
func (s *Sustain) SubtypeAndStage(data Data, chain *Chain, nSamples int) Assignments {

	m := data.NumSamples()
	n := data.NumStages()
	ns := chain.NumSubtypes()
	order := SubtypeOrder(chain)

	probSubtype := makeFloatArray(m, ns)
	probStage := makeFloatArray(m, n+1)
	probSubtypeStage := make([][][]float64, m)
	for j := range probSubtypeStage {
		probSubtypeStage[j] = makeFloatArray(n+1, ns)
	}

	seq := make([][]int, ns)
	f := make([]float64, ns)
	for i, it := range ThinIndices(chain.Len(), nSamples) {

		for k, c := range order {
			seq[k] = chain.Sequence[it][c]
			f[k] = chain.Fraction[it][c]
		}

		lk := CalcLikelihood(data, s.model, seq, f)
		joint := lk.SubtypeStage(f)

		w0 := float64(i) / float64(i+1)
		w1 := 1 / float64(i+1)
		for j := 0; j < m; j++ {

			p := copyFloats(lk.Subtype[j])
			normalizeSum(p)
			for k := range p {
				probSubtype[j][k] = w0*probSubtype[j][k] + w1*p[k]
			}

			p = copyFloats(lk.Stage[j])
			normalizeSum(p)
			for k := range p {
				probStage[j][k] = w0*probStage[j][k] + w1*p[k]
			}

			var tot float64
			for _, row := range joint[j] {
				for _, v := range row {
					tot += v
				}
			}
			for k, row := range joint[j] {
				for c, v := range row {
					probSubtypeStage[j][k][c] = w0*probSubtypeStage[j][k][c] + w1*v/tot
				}
			}
		}
	}

	a := Assignments{
		Subtype:          filledFloats(m, math.NaN()),
		SubtypeProb:      filledFloats(m, math.NaN()),
		Stage:            filledFloats(m, math.NaN()),
		StageProb:        filledFloats(m, math.NaN()),
		ProbSubtype:      probSubtype,
		ProbStage:        probStage,
		ProbSubtypeStage: probSubtypeStage,
		Order:            order,
	}

	pstage := make([]float64, n+1)
	for j := 0; j < m; j++ {

		st := argmax(probSubtype[j])
		if st < 0 {
			continue
		}
		a.Subtype[j] = float64(st)
		a.SubtypeProb[j] = probSubtype[j][st]

		for k := range pstage {
			pstage[k] = probSubtypeStage[j][k][st]
		}
		if k := argmax(pstage); k >= 0 {
			a.Stage[j] = float64(k)
			a.StageProb[j] = pstage[k]
		}
	}

	return a
}
