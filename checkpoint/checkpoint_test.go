package checkpoint

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshedden/sustain/sustainlib"
)

func testCheckpoint() *sustainlib.Checkpoint {

	chain := &sustainlib.Chain{
		Sequence: [][][]int{{{0, 1, 2}, {2, 1, 0}}, {{1, 0, 2}, {2, 1, 0}}},
		Fraction: [][]float64{{0.5, 0.5}, {0.4, 0.6}},
		LogLike:  []float64{-10, -9},
	}

	return &sustainlib.Checkpoint{
		Subtypes: 2,
		Fold:     1,
		Prev:     sustainlib.Sample{Sequence: [][]int{{0, 1, 2}}, Fraction: []float64{1}, LogLike: -12},
		EM:       sustainlib.Sample{Sequence: [][]int{{0, 1, 2}, {2, 1, 0}}, Fraction: []float64{0.5, 0.5}, LogLike: -9.5},
		MCMC:     chain.At(1).Copy(),
		Chain:    chain,
		SeqSigma: [][]float64{{0.01, 0.5, 0.3}, {0.01, 0.01, 0.01}},
		FSigma:   []float64{0.05, 0.05},
		Skipped:  []int{0},
		HeldOut:  [][]float64{{0.1, 0.2}, {0.3, 0.4}},
	}
}

func TestEncodeDecode(t *testing.T) {

	cp := testCheckpoint()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, cp))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, cp, got)

	_, err = Decode(bytes.NewReader([]byte("not a checkpoint")))
	assert.Error(t, err)
}

// NaN assignments survive encoding.
func TestEncodeAssignments(t *testing.T) {

	cp := testCheckpoint()
	cp.Assign = &sustainlib.Assignments{
		Subtype:     []float64{0, math.NaN()},
		SubtypeProb: []float64{0.9, math.NaN()},
		Order:       []int{1, 0},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, cp))
	got, err := Decode(&buf)
	require.NoError(t, err)

	require.NotNil(t, got.Assign)
	assert.Equal(t, 0.0, got.Assign.Subtype[0])
	assert.True(t, math.IsNaN(got.Assign.Subtype[1]))
	assert.Equal(t, []int{1, 0}, got.Assign.Order)
}

func testStore(t *testing.T, store sustainlib.Store) {

	ctx := context.Background()
	key := sustainlib.Key{Dataset: "sim", Subtypes: 2, Fold: 1}

	_, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	cp := testCheckpoint()
	require.NoError(t, store.Save(ctx, key, cp))

	got, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp, got)

	// Other keys are unaffected
	_, ok, err = store.Load(ctx, sustainlib.Key{Dataset: "sim", Subtypes: 2, Fold: sustainlib.FullData})
	require.NoError(t, err)
	assert.False(t, ok)

	// Saving again replaces the checkpoint
	cp.EM.LogLike = -1
	require.NoError(t, store.Save(ctx, key, cp))
	got, _, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, -1.0, got.EM.LogLike)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.Save(cancelled, key, cp), context.Canceled)
}

func TestBadgerStore(t *testing.T) {

	cfg := InMemoryConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	bs, err := OpenBadger(cfg)
	require.NoError(t, err)
	defer bs.Close()

	testStore(t, bs)

	keys, err := bs.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"sim_fold1_subtype2"}, keys)
}

func TestBadgerStorePersists(t *testing.T) {

	dir := t.TempDir()
	ctx := context.Background()
	key := sustainlib.Key{Dataset: "sim", Subtypes: 1, Fold: sustainlib.FullData}

	bs, err := OpenBadger(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, bs.Save(ctx, key, testCheckpoint()))
	require.NoError(t, bs.Close())

	bs, err = OpenBadger(DefaultConfig(dir))
	require.NoError(t, err)
	defer bs.Close()

	got, ok, err := bs.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testCheckpoint(), got)
}

func TestOpenBadgerRequiresPath(t *testing.T) {

	_, err := OpenBadger(Config{})
	assert.Error(t, err)
}

func TestDirStore(t *testing.T) {

	ds := DirStore{Dir: t.TempDir()}
	testStore(t, ds)

	key := sustainlib.Key{Dataset: "sim", Subtypes: 2, Fold: 1}
	_, err := os.Stat(ds.Path(key))
	assert.NoError(t, err)

	entries, err := os.ReadDir(ds.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")

	require.NoError(t, os.WriteFile(ds.Path(key), []byte("garbage"), 0600))
	_, _, err = ds.Load(context.Background(), key)
	assert.Error(t, err)
}
