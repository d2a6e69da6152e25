// Package sustainsim generates synthetic cohorts with known progression
// subtypes, for testing and simulation studies.
package sustainsim

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/sustain/eventmodel"
	"github.com/kshedden/sustain/sustainlib"
)

// ErrInvalidParams is wrapped by the errors returned when simulation
// parameters are inconsistent.
var ErrInvalidParams = errors.New("sustainsim: invalid parameters")

// Params describes a simulated cohort.
type Params struct {

	// Sequence[s] is the true event ordering of subtype s.
	Sequence [][]int `yaml:"sequence"`

	// Fraction[s] is the probability that a subject belongs to subtype s.
	Fraction []float64 `yaml:"fraction"`

	// NSubject is the number of subjects.
	NSubject int `yaml:"n_subject"`

	// Stages are drawn uniformly from MinStage, ..., MaxStage.  If both
	// are zero, all stages 0, ..., N are used.
	MinStage int `yaml:"min_stage"`
	MaxStage int `yaml:"max_stage"`

	// Shift is the mean of an abnormal biomarker; normal biomarkers have
	// mean zero.
	Shift float64 `yaml:"shift"`

	// Std is the measurement standard deviation.
	Std float64 `yaml:"std"`
}

// Cohort is a simulated cohort with its ground truth.
type Cohort struct {
	Params Params

	// Subtype[m] is the true subtype of subject m.
	Subtype []int

	// Stage[m] is the true stage of subject m.
	Stage []int

	// Value[m][j] is the measured value of biomarker j for subject m.
	Value [][]float64

	// LYes and LNo are the likelihoods of the values under the abnormal
	// and normal states.
	LYes [][]float64
	LNo  [][]float64
}

// Validate checks the parameters for consistency.
func (p *Params) Validate() error {

	if len(p.Sequence) == 0 {
		return fmt.Errorf("%w: no sequences", ErrInvalidParams)
	}
	if len(p.Fraction) != len(p.Sequence) {
		return fmt.Errorf("%w: %d fractions for %d sequences", ErrInvalidParams, len(p.Fraction), len(p.Sequence))
	}

	n := len(p.Sequence[0])
	for s, seq := range p.Sequence {
		if len(seq) != n || !sustainlib.IsPermutation(seq) {
			return fmt.Errorf("%w: sequence %d is not a permutation of %d events", ErrInvalidParams, s, n)
		}
	}

	var tot float64
	for _, f := range p.Fraction {
		if f < 0 {
			return fmt.Errorf("%w: negative fraction %g", ErrInvalidParams, f)
		}
		tot += f
	}
	if math.Abs(tot-1) > 1e-9 {
		return fmt.Errorf("%w: fractions sum to %g", ErrInvalidParams, tot)
	}

	if p.MinStage < 0 || p.MaxStage > n || p.MinStage > p.MaxStage {
		return fmt.Errorf("%w: stage range [%d, %d] with %d events", ErrInvalidParams, p.MinStage, p.MaxStage, n)
	}

	if p.NSubject < 0 {
		return fmt.Errorf("%w: %d subjects", ErrInvalidParams, p.NSubject)
	}

	if p.Std <= 0 {
		return fmt.Errorf("%w: standard deviation %g", ErrInvalidParams, p.Std)
	}

	return nil
}

// Generate simulates a cohort.  All random draws come from rng.
func Generate(p Params, rng *rand.Rand) (*Cohort, error) {

	if len(p.Sequence) > 0 && p.MinStage == 0 && p.MaxStage == 0 {
		p.MaxStage = len(p.Sequence[0])
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	n := len(p.Sequence[0])
	abnormal := distuv.Normal{Mu: p.Shift, Sigma: p.Std}
	normal := distuv.Normal{Mu: 0, Sigma: p.Std}

	c := &Cohort{
		Params:  p,
		Subtype: make([]int, p.NSubject),
		Stage:   make([]int, p.NSubject),
		Value:   makeFloatArray(p.NSubject, n),
		LYes:    makeFloatArray(p.NSubject, n),
		LNo:     makeFloatArray(p.NSubject, n),
	}

	inv := make([][]int, len(p.Sequence))
	for s, seq := range p.Sequence {
		inv[s] = sustainlib.InversePermutation(seq)
	}

	for m := 0; m < p.NSubject; m++ {

		st := genDiscrete(p.Fraction, rng)
		k := p.MinStage + rng.Intn(p.MaxStage-p.MinStage+1)
		c.Subtype[m] = st
		c.Stage[m] = k

		for j := 0; j < n; j++ {
			var mu float64
			if inv[st][j] < k {
				mu = p.Shift
			}
			x := mu + p.Std*rng.NormFloat64()
			c.Value[m][j] = x
			c.LYes[m][j] = abnormal.Prob(x)
			c.LNo[m][j] = normal.Prob(x)
		}
	}

	return c, nil
}

// Data returns the event likelihoods of the cohort.
func (c *Cohort) Data() *eventmodel.Data {

	n := 0
	if len(c.Params.Sequence) > 0 {
		n = len(c.Params.Sequence[0])
	}

	d, err := eventmodel.NewData(c.LYes, c.LNo, n)
	if err != nil {
		// Generate always produces consistent shapes
		panic(err)
	}

	return d
}

// Write writes the cohort to w as a gzip-compressed gob value.
func (c *Cohort) Write(w io.Writer) error {

	gid := gzip.NewWriter(w)
	enc := gob.NewEncoder(gid)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode cohort: %w", err)
	}

	return gid.Close()
}

// WriteFile writes the cohort to the named file.
func (c *Cohort) WriteFile(fname string) error {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}

	if err := c.Write(fid); err != nil {
		fid.Close()
		return err
	}

	return fid.Close()
}

// Read reads a cohort written by Write.
func Read(r io.Reader) (*Cohort, error) {

	gid, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open cohort: %w", err)
	}
	defer gid.Close()

	dec := gob.NewDecoder(gid)

	var c Cohort
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode cohort: %w", err)
	}

	return &c, nil
}

// ReadFile reads a cohort from a gzip-compressed gob file.
func ReadFile(fname string) (*Cohort, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	return Read(fid)
}

// Generate a discrete random variable from the given probability vector,
// which must sum to 1.
func genDiscrete(pr []float64, rng *rand.Rand) int {

	u := rng.Float64()
	var c float64
	for i, p := range pr {
		c += p
		if u < c {
			return i
		}
	}

	return len(pr) - 1
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
