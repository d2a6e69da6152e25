package sustainlib_test

import (
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshedden/sustain/eventmodel"
	"github.com/kshedden/sustain/sustainlib"
	"github.com/kshedden/sustain/sustainsim"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallConfig() sustainlib.Config {
	cfg := sustainlib.DefaultConfig()
	cfg.Dataset = "test"
	cfg.NStartpoints = 4
	cfg.NSMax = 2
	cfg.NIterMCMC = 200
	cfg.NIterTune = 100
	cfg.NSamplesAssign = 50
	cfg.Workers = 2
	return cfg
}

func simulate(t *testing.T, p sustainsim.Params, seed int64) *sustainsim.Cohort {
	t.Helper()
	c, err := sustainsim.Generate(p, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return c
}

func newSustain(t *testing.T, data sustainlib.Data, cfg sustainlib.Config, opts ...sustainlib.Option) *sustainlib.Sustain {
	t.Helper()
	opts = append([]sustainlib.Option{sustainlib.WithLogger(discardLogger())}, opts...)
	s, err := sustainlib.New(data, eventmodel.Model{}, cfg, opts...)
	require.NoError(t, err)
	return s
}

// concat joins the subjects of several cohorts.
func concat(t *testing.T, cohorts ...*sustainsim.Cohort) *eventmodel.Data {
	t.Helper()
	var lyes, lno [][]float64
	for _, c := range cohorts {
		lyes = append(lyes, c.LYes...)
		lno = append(lno, c.LNo...)
	}
	d, err := eventmodel.NewData(lyes, lno, len(lyes[0]))
	require.NoError(t, err)
	return d
}

func checkSample(t *testing.T, x sustainlib.Sample, ns, n int) {
	t.Helper()
	require.Len(t, x.Sequence, ns)
	require.Len(t, x.Fraction, ns)
	for _, seq := range x.Sequence {
		assert.Len(t, seq, n)
		assert.True(t, sustainlib.IsPermutation(seq), "%v is not a permutation", seq)
	}
	var tot float64
	for _, f := range x.Fraction {
		assert.GreaterOrEqual(t, f, 0.0)
		tot += f
	}
	assert.InDelta(t, 1, tot, 1e-9)
	assert.False(t, math.IsNaN(x.LogLike))
}

// mlSubtypes assigns each subject to its most probable subtype of x.
func mlSubtypes(data sustainlib.Data, x sustainlib.Sample) []float64 {
	lk := sustainlib.CalcLikelihood(data, eventmodel.Model{}, x.Sequence, x.Fraction)
	est := make([]float64, data.NumSamples())
	for m, row := range lk.Subtype {
		j := 0
		for s := range row {
			if row[s] > row[j] {
				j = s
			}
		}
		est[m] = float64(j)
	}
	return est
}

var (
	twoOrders = sustainsim.Params{
		Sequence: [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}},
		Fraction: []float64{0.5, 0.5},
		NSubject: 200,
		MinStage: 1,
		MaxStage: 3,
		Shift:    4,
		Std:      1,
	}
)
