package sustainlib

import (
	"math"
	"math/rand"
	"runtime"

	"gonum.org/v1/gonum/floats"
)

// normalizeSum scales x to have a sum of 1.  A zero sum is not guarded and
// produces NaN values.
func normalizeSum(x []float64) {
	floats.Scale(1/floats.Sum(x), x)
}

// argmax returns the first position of the largest value in x.  If x
// contains NaN the result is -1.
func argmax(x []float64) int {

	j := 0
	v := x[0]
	for i := range x {
		if math.IsNaN(x[i]) {
			return -1
		}
		if x[i] > v {
			v = x[i]
			j = i
		}
	}

	return j
}

// makeIntArray makes a collection of r slices
// of length c, packed contiguously.
func makeIntArray(r, c int) [][]int {

	bka := make([]int, r*c)
	x := make([][]int, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}

// makeFloatArray makes a collection of r slices
// of length c, packed contiguously.
func makeFloatArray(r, c int) [][]float64 {

	bka := make([]float64, r*c)
	x := make([][]float64, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}

// copyIntArray returns a contiguous deep copy of x.
func copyIntArray(x [][]int) [][]int {

	if x == nil {
		return nil
	}

	c := 0
	if len(x) > 0 {
		c = len(x[0])
	}
	y := makeIntArray(len(x), c)
	for i := range x {
		copy(y[i], x[i])
	}

	return y
}

func copyFloats(x []float64) []float64 {
	if x == nil {
		return nil
	}
	y := make([]float64, len(x))
	copy(y, x)
	return y
}

func filledFloats(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func uniformFraction(ns int) []float64 {
	return filledFloats(ns, 1/float64(ns))
}

// IsPermutation returns true if seq contains each of 0, ..., len(seq)-1
// exactly once.
func IsPermutation(seq []int) bool {

	seen := make([]bool, len(seq))
	for _, v := range seq {
		if v < 0 || v >= len(seq) || seen[v] {
			return false
		}
		seen[v] = true
	}

	return true
}

// InversePermutation returns the position of each stage index in seq.
func InversePermutation(seq []int) []int {

	inv := make([]int, len(seq))
	for pos, v := range seq {
		inv[v] = pos
	}

	return inv
}

// MoveEvent returns a copy of seq in which the element at position from
// has been removed and reinserted at position to.
func MoveEvent(seq []int, from, to int) []int {

	ev := seq[from]
	rest := make([]int, 0, len(seq)-1)
	rest = append(rest, seq[:from]...)
	rest = append(rest, seq[from+1:]...)

	out := make([]int, 0, len(seq))
	out = append(out, rest[:to]...)
	out = append(out, ev)
	out = append(out, rest[to:]...)

	return out
}

// seeds draws n seeds from rng, so that concurrently executed units of work
// receive the same random streams regardless of scheduling.
func seeds(rng *rand.Rand, n int) []int64 {
	s := make([]int64, n)
	for i := range s {
		s[i] = rng.Int63()
	}
	return s
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
