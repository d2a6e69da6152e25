// Package sustainlib infers latent progression subtypes from cross-sectional
// biomarker data.  For an unknown number of subtypes it estimates the
// ordering of biomarker abnormality stages within each subtype, the
// prevalence of each subtype, and the most probable subtype and stage of
// every subject.
//
// The disease-specific stage likelihood is supplied by a Model; the package
// provides the hierarchical search over the number of subtypes, the EM-style
// optimizer, the mixture likelihood, the adaptive MCMC sampler, the posterior
// assignment of subjects and cross-validation.
package sustainlib

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
)

var (
	// ErrNoData is returned by New when no data provider is given.
	ErrNoData = errors.New("sustainlib: no data provider")

	// ErrNoModel is returned by New when no stage likelihood model is given.
	ErrNoModel = errors.New("sustainlib: no stage likelihood model")
)

// Data is a cohort of subjects with biomarker measurements.
type Data interface {

	// NumSamples returns the number of subjects.
	NumSamples() int

	// NumBiomarkers returns the number of biomarkers per subject.
	NumBiomarkers() int

	// NumStages returns N, the length of a progression sequence.
	NumStages() int

	// Reindex returns an independent view holding only the given subjects,
	// in the given order.
	Reindex(idx []int) Data
}

// Model is a disease-specific stage likelihood model.  Implementations must
// be safe for concurrent use; all randomness must come from the provided
// generator.
type Model interface {

	// InitialiseSequence returns a random starting sequence, a permutation
	// of 0, ..., N-1.
	InitialiseSequence(data Data, rng *rand.Rand) []int

	// StageLikelihood returns an M x (N+1) matrix holding the probability
	// of each subject's data at each stage of the given sequence.  Stage 0
	// is the unaffected stage.
	StageLikelihood(data Data, seq []int) [][]float64

	// OptimiseParameters performs one refinement step of the sequences and
	// fractions, returning the candidate and its log-likelihood.
	OptimiseParameters(data Data, seq [][]int, f []float64, rng *rand.Rand) ([][]int, []float64, float64)

	// MCMCStep performs one Markov chain step from cur using the given
	// perturbation scales.  seqSigma is indexed by subtype and stage index,
	// fSigma by subtype.  It returns the next state of the chain and
	// whether the proposal was accepted.
	MCMCStep(data Data, cur Sample, seqSigma [][]float64, fSigma []float64, rng *rand.Rand) (Sample, bool)
}

// Sample is a (sequence, fraction) pair with its log-likelihood.
type Sample struct {

	// Sequence[i] is the progression order of subtype i.
	Sequence [][]int

	// Fraction[i] is the mixture weight of subtype i.
	Fraction []float64

	// LogLike is the mixture log-likelihood of the pair.
	LogLike float64
}

// NumSubtypes returns the number of subtypes in the sample.
func (s Sample) NumSubtypes() int {
	return len(s.Sequence)
}

// Copy returns a deep copy of the sample.
func (s Sample) Copy() Sample {
	return Sample{
		Sequence: copyIntArray(s.Sequence),
		Fraction: copyFloats(s.Fraction),
		LogLike:  s.LogLike,
	}
}

// Sustain fits subtype and stage inference models to one cohort.
type Sustain struct {

	// The cohort being fit
	data Data

	// The stage likelihood model
	model Model

	Config Config

	// Checkpoints are read from and written to the store, if not nil
	store Store

	// Per-subtype-count chains are handed to the reporter, if not nil
	reporter Reporter

	logger *slog.Logger
}

// Option configures a Sustain value.
type Option func(*Sustain)

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sustain) {
		s.logger = logger
	}
}

// WithStore sets the checkpoint store.
func WithStore(store Store) Option {
	return func(s *Sustain) {
		s.store = store
	}
}

// WithReporter sets the collaborator that receives each subtype count's chain.
func WithReporter(reporter Reporter) Option {
	return func(s *Sustain) {
		s.reporter = reporter
	}
}

// New returns a Sustain value for the given cohort and model.  An invalid
// data provider or configuration is reported as an error.
func New(data Data, model Model, cfg Config, opts ...Option) (*Sustain, error) {

	if data == nil {
		return nil, ErrNoData
	}
	if model == nil {
		return nil, ErrNoModel
	}
	if data.NumStages() < 1 {
		return nil, fmt.Errorf("sustainlib: data provider has %d stages", data.NumStages())
	}
	if data.NumBiomarkers() < 1 {
		return nil, fmt.Errorf("sustainlib: data provider has %d biomarkers", data.NumBiomarkers())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sustain{
		data:   data,
		model:  model,
		Config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("sustain initialised",
		slog.Int("subjects", data.NumSamples()),
		slog.Int("biomarkers", data.NumBiomarkers()),
		slog.Int("stages", data.NumStages()),
		slog.Int("max_subtypes", cfg.NSMax))

	return s, nil
}

// Data returns the cohort being fit.
func (s *Sustain) Data() Data {
	return s.data
}

// Model returns the stage likelihood model.
func (s *Sustain) Model() Model {
	return s.model
}
