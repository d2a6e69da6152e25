package sustainlib

import (
	"log/slog"
)

// Reporter receives the production chain of each fitted subtype count, for
// example to render positional variance diagrams.  The chain must not be
// modified.
type Reporter interface {
	Report(nSubtypes int, chain *Chain) error
}

// LogReporter is a Reporter that logs a summary of each chain.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (lr LogReporter) Report(nSubtypes int, chain *Chain) error {

	logger := lr.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if chain.Len() == 0 {
		logger.Warn("empty chain", slog.Int("subtypes", nSubtypes))
		return nil
	}

	ml := 0
	for i, ll := range chain.LogLike {
		if ll > chain.LogLike[ml] {
			ml = i
		}
	}

	logger.Info("chain summary",
		slog.Int("subtypes", nSubtypes),
		slog.Int("samples", chain.Len()),
		slog.Float64("max_loglike", chain.LogLike[ml]),
		slog.Any("mean_fraction", chain.MeanFraction()),
		slog.Any("ml_sequence", chain.Sequence[ml]))

	return nil
}
