package sustainsim

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func testParams() Params {
	return Params{
		Sequence: [][]int{{0, 1, 2}, {2, 1, 0}},
		Fraction: []float64{0.25, 0.75},
		NSubject: 400,
		Shift:    3,
		Std:      1,
	}
}

func TestGenerate(t *testing.T) {

	c, err := Generate(testParams(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.Len(t, c.Subtype, 400)
	require.Len(t, c.Value, 400)
	assert.Equal(t, 3, c.Params.MaxStage)

	var n1 int
	for m := range c.Subtype {
		assert.True(t, c.Subtype[m] == 0 || c.Subtype[m] == 1)
		assert.True(t, c.Stage[m] >= 0 && c.Stage[m] <= 3)
		if c.Subtype[m] == 1 {
			n1++
		}
		for j, x := range c.Value[m] {
			assert.InDelta(t, distuv.Normal{Mu: 3, Sigma: 1}.Prob(x), c.LYes[m][j], 1e-15)
			assert.InDelta(t, distuv.Normal{Mu: 0, Sigma: 1}.Prob(x), c.LNo[m][j], 1e-15)
		}
	}
	assert.InDelta(t, 0.75, float64(n1)/400, 0.07)

	d := c.Data()
	assert.Equal(t, 400, d.NumSamples())
	assert.Equal(t, 3, d.NumStages())
}

func TestGenerateAbnormalMeans(t *testing.T) {

	p := testParams()
	p.Std = 0.01
	c, err := Generate(p, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	for m := range c.Value {
		seq := p.Sequence[c.Subtype[m]]
		for pos, j := range seq {
			if pos < c.Stage[m] {
				assert.InDelta(t, 3, c.Value[m][j], 0.1)
			} else {
				assert.InDelta(t, 0, c.Value[m][j], 0.1)
			}
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {

	a, err := Generate(testParams(), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	b, err := Generate(testParams(), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidate(t *testing.T) {

	for _, mod := range []func(*Params){
		func(p *Params) { p.Sequence = nil },
		func(p *Params) { p.Fraction = []float64{1} },
		func(p *Params) { p.Fraction = []float64{0.5, 0.6} },
		func(p *Params) { p.Fraction = []float64{-0.5, 1.5} },
		func(p *Params) { p.Sequence = [][]int{{0, 1, 1}, {2, 1, 0}} },
		func(p *Params) { p.Sequence = [][]int{{0, 1}, {2, 1, 0}} },
		func(p *Params) { p.MinStage, p.MaxStage = 2, 1 },
		func(p *Params) { p.MaxStage = 4 },
		func(p *Params) { p.Std = 0 },
	} {
		p := testParams()
		p.MaxStage = 3
		mod(&p)
		_, err := Generate(p, rand.New(rand.NewSource(1)))
		assert.ErrorIs(t, err, ErrInvalidParams)
	}
}

func TestReadWrite(t *testing.T) {

	c, err := Generate(testParams(), rand.New(rand.NewSource(4)))
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "cohort.gob.gz")
	require.NoError(t, c.WriteFile(fname))

	d, err := ReadFile(fname)
	require.NoError(t, err)
	assert.Equal(t, c, d)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.gob.gz"))
	assert.Error(t, err)
}

func TestAccuracy(t *testing.T) {

	nan := math.NaN()

	q, n := Accuracy([]int{0, 0, 1, 1}, []float64{1, 1, 0, nan}, 2)
	assert.Equal(t, 3, q)
	assert.Equal(t, 3, n)

	q, n = Accuracy([]int{0, 1, 2, 2}, []float64{2, 0, 1, 0}, 3)
	assert.Equal(t, 3, q)
	assert.Equal(t, 4, n)

	assert.Panics(t, func() { Accuracy([]int{0}, nil, 1) })
}
