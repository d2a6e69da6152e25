package sustainsim

import (
	"math"
)

// Accuracy returns the number of subjects whose estimated subtype est
// agrees with the true subtype truth under the best relabeling of the ns
// estimated subtypes, and the number of subjects with a defined estimate.
// Subjects whose estimate is NaN are not counted.  Panics if the lengths
// of truth and est differ.
func Accuracy(truth []int, est []float64, ns int) (int, int) {

	if len(truth) != len(est) {
		panic("Lengths are not equal")
	}

	// agree[a][b] counts subjects with estimate a and truth b
	agree := make([][]int, ns)
	for a := range agree {
		agree[a] = make([]int, ns)
	}

	var n int
	for m, e := range est {
		if math.IsNaN(e) {
			continue
		}
		a, b := int(e), truth[m]
		if a >= 0 && a < ns && b >= 0 && b < ns {
			agree[a][b]++
		}
		n++
	}

	best := 0
	permute(ns, func(perm []int) {
		var c int
		for a, b := range perm {
			c += agree[a][b]
		}
		if c > best {
			best = c
		}
	})

	return best, n
}

// permute calls fn with every permutation of 0, ..., n-1.
func permute(n int, fn func([]int)) {

	perm := make([]int, n)
	used := make([]bool, n)

	var rec func(int)
	rec = func(i int) {
		if i == n {
			fn(perm)
			return
		}
		for v := 0; v < n; v++ {
			if used[v] {
				continue
			}
			used[v] = true
			perm[i] = v
			rec(i + 1)
			used[v] = false
		}
	}
	rec(0)
}
