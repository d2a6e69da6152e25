package sustainlib

import (
	"context"
	"fmt"
	"sync"
)

// FullData is the fold number of checkpoints made from the whole cohort.
const FullData = -1

// Key identifies one checkpoint.
type Key struct {

	// Dataset names the cohort.
	Dataset string

	// Subtypes is the number of subtypes of the checkpointed fit.
	Subtypes int

	// Fold is the cross-validation fold, or FullData.
	Fold int
}

// String returns the name used for the checkpoint in stores.
func (k Key) String() string {
	if k.Fold == FullData {
		return fmt.Sprintf("%s_subtype%d", k.Dataset, k.Subtypes)
	}
	return fmt.Sprintf("%s_fold%d_subtype%d", k.Dataset, k.Fold, k.Subtypes)
}

// Checkpoint is the persisted outcome of one fully optimized subtype count.
type Checkpoint struct {

	// Subtypes is the number of subtypes.
	Subtypes int

	// Fold is the cross-validation fold, or FullData.
	Fold int

	// Prev is the optimum with one fewer subtype that was split.
	Prev Sample

	// EM is the maximum likelihood optimum found by the grower.
	EM Sample

	// Starts holds the converged pair of every start point of the winning
	// optimization.
	Starts []Sample

	// MCMC is the best state visited by the production chain.
	MCMC Sample

	// Chain is the production chain.
	Chain *Chain

	// Skipped lists the subtypes of Prev too small to be split.
	Skipped []int

	// SeqSigma and FSigma are the tuned proposal scales.
	SeqSigma [][]float64
	FSigma   []float64

	// Assign holds the subject assignments.  It is only set for FullData
	// checkpoints.
	Assign *Assignments

	// HeldOut[m][i] is the likelihood of held-out subject m under chain
	// sample i.  It is only set for cross-validation folds.
	HeldOut [][]float64
}

// Store persists checkpoints.  Implementations must be safe for concurrent
// use.
type Store interface {

	// Save writes the checkpoint under key, replacing any previous value.
	Save(ctx context.Context, key Key, cp *Checkpoint) error

	// Load reads the checkpoint stored under key.  The boolean is false if
	// there is no such checkpoint.
	Load(ctx context.Context, key Key) (*Checkpoint, bool, error)
}

// MemStore is a Store held in memory.
type MemStore struct {
	mu sync.Mutex
	cp map[Key]*Checkpoint
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		cp: make(map[Key]*Checkpoint),
	}
}

// Save implements Store.
func (ms *MemStore) Save(_ context.Context, key Key, cp *Checkpoint) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.cp[key] = cp
	return nil
}

// Load implements Store.
func (ms *MemStore) Load(_ context.Context, key Key) (*Checkpoint, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cp, ok := ms.cp[key]
	return cp, ok, nil
}

// Len returns the number of stored checkpoints.
func (ms *MemStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.cp)
}
