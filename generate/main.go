package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kshedden/sustain/sustainsim"
)

func main() {

	var params, outname string
	var nSubject, nBio, nSubtype, minStage, maxStage int
	var shift, std float64
	var seed int64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Simulate a cohort with known progression subtypes",
		Long: `Simulates biomarker values for a cohort whose subjects follow one of several
progression sequences, and writes the cohort with its ground truth to a
gzip-compressed gob file.  Unless a parameter file is given, the sequences
are random and the subtypes equally prevalent.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {

			rng := rand.New(rand.NewSource(seed))

			var p sustainsim.Params
			if params != "" {
				b, err := os.ReadFile(params)
				if err != nil {
					return err
				}
				if err := yaml.Unmarshal(b, &p); err != nil {
					return fmt.Errorf("parse %s: %w", params, err)
				}
			} else {
				if maxStage == 0 {
					maxStage = nBio
				}
				p = sustainsim.Params{
					Sequence: make([][]int, nSubtype),
					Fraction: make([]float64, nSubtype),
					NSubject: nSubject,
					MinStage: minStage,
					MaxStage: maxStage,
					Shift:    shift,
					Std:      std,
				}
				for s := range p.Sequence {
					p.Sequence[s] = rng.Perm(nBio)
					p.Fraction[s] = 1 / float64(nSubtype)
				}
			}

			cohort, err := sustainsim.Generate(p, rng)
			if err != nil {
				return err
			}

			if err := cohort.WriteFile(outname); err != nil {
				return err
			}

			slog.Info("wrote cohort",
				slog.String("file", outname),
				slog.Int("subjects", p.NSubject),
				slog.Any("sequence", p.Sequence))

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&params, "params", "", "YAML file of simulation parameters")
	f.StringVar(&outname, "outname", "", "Output file name (required)")
	f.IntVar(&nSubject, "nsubject", 500, "Number of subjects")
	f.IntVar(&nBio, "nbio", 6, "Number of biomarkers")
	f.IntVar(&nSubtype, "nsubtype", 2, "Number of subtypes")
	f.IntVar(&minStage, "min-stage", 0, "Smallest stage")
	f.IntVar(&maxStage, "max-stage", 0, "Largest stage, 0 for the number of biomarkers")
	f.Float64Var(&shift, "shift", 3, "Mean of abnormal biomarkers")
	f.Float64Var(&std, "std", 1, "Measurement standard deviation")
	f.Int64Var(&seed, "seed", 1, "Random seed")
	_ = cmd.MarkFlagRequired("outname")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
