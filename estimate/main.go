package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kshedden/sustain/checkpoint"
	"github.com/kshedden/sustain/eventmodel"
	"github.com/kshedden/sustain/sustainlib"
	"github.com/kshedden/sustain/sustainsim"
)

type options struct {
	gobfile     string
	config      string
	store       string
	storePath   string
	logLevel    string
	nstart      int
	nsmax       int
	niter       int
	seed        int64
	workers     int
	folds       int
	selectFolds []int
	progress    bool
}

func main() {

	var opt options

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Fit progression subtype and stage models to a cohort",
		Long: `Fits event-based subtype and stage models with 1, ..., n_s_max subtypes
to a gzip-compressed gob cohort, samples their posterior, and assigns every
subject to a subtype and stage.  With --folds, the models are cross-validated
instead.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, &opt)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opt.gobfile, "gobfile", "", "The cohort file (required)")
	f.StringVar(&opt.config, "config", "", "YAML configuration file")
	f.StringVar(&opt.store, "store", "dir", "Checkpoint store: dir, badger or none")
	f.StringVar(&opt.storePath, "store-path", "checkpoints", "Checkpoint directory")
	f.StringVar(&opt.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	f.IntVar(&opt.nstart, "nstart", 0, "Override the number of start points")
	f.IntVar(&opt.nsmax, "nsmax", 0, "Override the maximum number of subtypes")
	f.IntVar(&opt.niter, "niter", 0, "Override the number of MCMC iterations")
	f.Int64Var(&opt.seed, "seed", 0, "Override the random seed")
	f.IntVar(&opt.workers, "workers", -1, "Override the number of workers")
	f.IntVar(&opt.folds, "folds", 0, "Number of cross-validation folds, 0 for none")
	f.IntSliceVar(&opt.selectFolds, "select-folds", nil, "Cross-validation folds to run")
	f.BoolVar(&opt.progress, "progress", false, "Show progress bars")
	_ = cmd.MarkFlagRequired("gobfile")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {

	var lev slog.Level
	if err := lev.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lev})), nil
}

func loadConfig(cmd *cobra.Command, opt *options) (sustainlib.Config, error) {

	cfg, err := sustainlib.LoadConfig(opt.config)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("nstart") {
		cfg.NStartpoints = opt.nstart
	}
	if f.Changed("nsmax") {
		cfg.NSMax = opt.nsmax
	}
	if f.Changed("niter") {
		cfg.NIterMCMC = opt.niter
	}
	if f.Changed("seed") {
		cfg.Seed = opt.seed
	}
	if f.Changed("workers") {
		cfg.Workers = opt.workers
	}
	if f.Changed("progress") {
		cfg.Progress = opt.progress
	}

	return cfg, cfg.Validate()
}

func openStore(opt *options, logger *slog.Logger) (sustainlib.Store, func() error, error) {

	noop := func() error { return nil }

	switch opt.store {
	case "none":
		return nil, noop, nil
	case "dir":
		return checkpoint.DirStore{Dir: opt.storePath}, noop, nil
	case "badger":
		cfg := checkpoint.DefaultConfig(opt.storePath)
		cfg.Logger = logger
		bs, err := checkpoint.OpenBadger(cfg)
		if err != nil {
			return nil, noop, err
		}
		return bs, bs.Close, nil
	default:
		return nil, noop, fmt.Errorf("estimate: unknown store %q", opt.store)
	}
}

func run(cmd *cobra.Command, opt *options) error {

	logger, err := newLogger(opt.logLevel)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opt)
	if err != nil {
		return err
	}

	cohort, err := sustainsim.ReadFile(opt.gobfile)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(opt, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("close store", slog.String("error", err.Error()))
		}
	}()

	sopts := []sustainlib.Option{
		sustainlib.WithLogger(logger),
		sustainlib.WithReporter(sustainlib.LogReporter{Logger: logger}),
	}
	if store != nil {
		sopts = append(sopts, sustainlib.WithStore(store))
	}

	s, err := sustainlib.New(cohort.Data(), eventmodel.Model{}, cfg, sopts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if opt.folds > 0 {
		return crossValidate(ctx, s, cohort, opt, logger)
	}

	results, err := s.Run(ctx)
	if err != nil {
		return err
	}

	for _, res := range results {
		report(logger, cohort, &res)
	}

	return nil
}

// report compares the subject assignments with the true subtypes of the
// cohort.
func report(logger *slog.Logger, cohort *sustainsim.Cohort, res *sustainlib.SubtypeResult) {

	q, n := sustainsim.Accuracy(cohort.Subtype, res.Assign.Subtype, res.Subtypes)

	logger.Info("fitted model",
		slog.Int("subtypes", res.Subtypes),
		slog.Bool("cached", res.Cached),
		slog.Float64("em_loglike", res.EM.LogLike),
		slog.Float64("mcmc_loglike", res.MCMC.LogLike),
		slog.Any("sequence", res.EM.Sequence),
		slog.Any("fraction", res.EM.Fraction),
		slog.Int("correct", q),
		slog.Int("assigned", n))
}

func crossValidate(ctx context.Context, s *sustainlib.Sustain, cohort *sustainsim.Cohort, opt *options, logger *slog.Logger) error {

	folds := sustainlib.KFold(s.Data().NumSamples(), opt.folds, rand.New(rand.NewSource(s.Config.Seed)))
	if err := sustainlib.ValidateFolds(folds, s.Data().NumSamples()); err != nil {
		return err
	}

	results, err := s.CrossValidate(ctx, folds, opt.selectFolds)
	if err != nil {
		return err
	}

	cvic, loglike := sustainlib.CVIC(results)
	for j, v := range cvic {
		logger.Info("cross-validation information criterion",
			slog.Int("subtypes", j+1),
			slog.Float64("cvic", v))
	}
	for k, fr := range results {
		logger.Info("held-out log-likelihood",
			slog.Int("fold", fr.Fold),
			slog.Any("loglike", loglike[k]))
	}

	return nil
}
