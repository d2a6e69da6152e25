package sustainlib

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chain phases used as metric labels
const (
	phaseTune   = "tune"
	phaseSample = "sample"
)

var (
	// emSteps counts optimization steps taken by PerformEM
	emSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sustain_em_steps_total",
		Help: "Total EM optimization steps",
	})

	// emAccepted counts optimization steps whose candidate was adopted
	emAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sustain_em_accepted_total",
		Help: "Total EM optimization steps that improved the log-likelihood",
	})

	// emIterations tracks the number of steps per EM run
	emIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sustain_em_iterations",
		Help:    "Number of EM steps per run",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	// mcmcSteps counts Markov chain steps by phase
	mcmcSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sustain_mcmc_steps_total",
		Help: "Total MCMC steps by phase",
	}, []string{"phase"})

	// mcmcAccepted counts accepted Markov chain proposals by phase
	mcmcAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sustain_mcmc_accepted_total",
		Help: "Total accepted MCMC proposals by phase",
	}, []string{"phase"})

	// splitsSkipped counts subtypes too small to be split
	splitsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sustain_splits_skipped_total",
		Help: "Total subtypes with at most one subject skipped during splitting",
	})
)
