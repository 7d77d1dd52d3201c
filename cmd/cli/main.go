package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"sourceboot/adapters/epochs"
	"sourceboot/adapters/excel"
	"sourceboot/adapters/fsstore"
	"sourceboot/adapters/inverse"
	"sourceboot/adapters/memory"
	"sourceboot/adapters/postgres"
	"sourceboot/adapters/rng"
	"sourceboot/app"
	"sourceboot/domain/core"
	"sourceboot/domain/pci"
	"sourceboot/domain/sourcespace"
	"sourceboot/domain/threshold"
	"sourceboot/internal/config"
	"sourceboot/ports"
	"sourceboot/ui"
)

// defaultBands is the standard band partition over the analysis grid
var defaultBands = []sourcespace.Band{
	{Name: "theta", FMin: 4, FMax: 8},
	{Name: "alpha", FMin: 8, FMax: 15},
	{Name: "beta", FMin: 15, FMax: 35},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	rootCmd := &cobra.Command{
		Use:   "sourceboot",
		Short: "Bootstrap resampling, thresholding, and complexity analysis of source estimates",
	}

	rootCmd.AddCommand(
		newResampleCmd(),
		newThresholdCmd(),
		newPCICmd(),
		newCorrelateCmd(),
		newRunCmd(),
		newStatusCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cellFlags holds the analysis-cell selection shared by every stage command
type cellFlags struct {
	event     string
	condition string
	value     string
	force     bool
	seed      int64
}

func (f *cellFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.event, "event", "", "Epoching event (required)")
	cmd.Flags().StringVar(&f.condition, "condition", "", "Behavioral condition column (required)")
	cmd.Flags().StringVar(&f.value, "value", string(app.ValueAll), "Condition value, or 'all' for the whole population")
	cmd.Flags().BoolVar(&f.force, "force", false, "Recompute even if the stage is already complete")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Override the configured random seed")
	cmd.MarkFlagRequired("event")
	cmd.MarkFlagRequired("condition")
}

func (f *cellFlags) key() (core.AnalysisKey, error) {
	return core.NewAnalysisKey(core.EventKey(f.event), core.ConditionKey(f.condition), core.ValueKey(f.value))
}

// buildPipeline wires the configured adapters into the pipeline services
func buildPipeline(seedOverride int64) (*app.Pipeline, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	seed := cfg.Seed
	if seedOverride != 0 {
		seed = seedOverride
	}

	deps, err := buildDeps(cfg)
	if err != nil {
		return nil, nil, err
	}

	policy := threshold.BootstrapPolicy(0.01)
	if cfg.Threshold.Alpha == string(threshold.ModeMedianSplit) {
		policy = threshold.MedianSplitPolicy()
	} else if alpha, err := strconv.ParseFloat(cfg.Threshold.Alpha, 64); err == nil {
		policy = threshold.BootstrapPolicy(alpha)
	} else {
		return nil, nil, fmt.Errorf("unrecognized alpha %q", cfg.Threshold.Alpha)
	}

	pipeline := app.NewPipeline(deps,
		app.ResamplerParams{
			NBoot:      cfg.Resample.NBoot,
			NAve:       cfg.Resample.NAve,
			BatchSize:  cfg.Resample.BatchSize,
			Seed:       seed,
			Workers:    cfg.Workers,
			Downsample: cfg.Resample.Downsample,
			TFR:        cfg.Resample.TFR,
			Phase:      cfg.Resample.Phase,
			FMin:       cfg.Resample.FMin,
			FMax:       cfg.Resample.FMax,
			NMin:       cfg.Resample.NMin,
			NMax:       cfg.Resample.NMax,
			Steps:      cfg.Resample.Steps,
			Bands:      defaultBands,
		},
		app.ThresholderParams{
			Policy:         policy,
			NBoot:          cfg.Threshold.NBoot,
			BaselineTmin:   cfg.Threshold.BaselineTmin,
			BaselineTmax:   cfg.Threshold.BaselineTmax,
			Seed:           seed,
			Workers:        cfg.Workers,
			SharedBaseline: cfg.Threshold.SharedBaseline,
		},
		app.PCIParams{
			Order:         pci.RankAscending,
			LeadingOffset: cfg.PCI.LeadingOffset,
		},
		app.CorrelatorParams{
			NPermutations: cfg.Correlate.NPermutations,
			BaselineTmin:  cfg.Threshold.BaselineTmin,
			BaselineTmax:  cfg.Threshold.BaselineTmax,
			Seed:          seed,
			Workers:       cfg.Workers,
			Downsample:    cfg.Resample.Downsample,
		},
	)
	return pipeline, cfg, nil
}

// buildDeps assembles the port implementations from configuration. The stage
// ledger lives in postgres when DATABASE_URL is set, otherwise in memory for
// single-process runs.
func buildDeps(cfg *config.Config) (app.Deps, error) {
	store, err := fsstore.NewStore(cfg.Paths.DataDir)
	if err != nil {
		return app.Deps{}, err
	}

	var behavior *excel.BehaviorLog
	if cfg.Paths.BehaviorFile != "" {
		behavior, err = excel.NewBehaviorReader(cfg.Paths.BehaviorFile).ReadLog()
		if err != nil {
			return app.Deps{}, err
		}
	}

	var ledger ports.StageLedger
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return app.Deps{}, fmt.Errorf("connecting stage ledger: %w", err)
		}
		ledger, err = postgres.NewLedger(db)
		if err != nil {
			return app.Deps{}, err
		}
	} else {
		ledger = memory.NewLedger()
		log.Printf("DATABASE_URL not set, stage ledger is in-memory for this run")
	}

	return app.Deps{
		Trials:      epochs.NewDirProvider(cfg.Paths.DataDir, behavior),
		Inverse:     inverse.NewDirProvider(cfg.Paths.InverseDir),
		RNG:         rng.NewStreamAdapter(),
		Checkpoints: store,
		Artifacts:   store,
		Ledger:      ledger,
	}, nil
}

func newResampleCmd() *cobra.Command {
	var flags cellFlags
	cmd := &cobra.Command{
		Use:   "resample",
		Short: "Run or resume bootstrap resampling for one analysis cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := flags.key()
			if err != nil {
				return err
			}
			pipeline, _, err := buildPipeline(flags.seed)
			if err != nil {
				return err
			}
			m, err := pipeline.Resampler.Run(cmd.Context(), key, flags.force)
			if err != nil {
				return err
			}
			fmt.Printf("resampled %s: Nboot=%d Nave=%d batches=%d\n", key, m.NBoot, m.NAve, len(m.Batches()))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newThresholdCmd() *cobra.Command {
	var flags cellFlags
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Derive per-source binarization thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := flags.key()
			if err != nil {
				return err
			}
			pipeline, _, err := buildPipeline(flags.seed)
			if err != nil {
				return err
			}
			a, err := pipeline.Thresholder.Run(cmd.Context(), key, flags.force)
			if err != nil {
				return err
			}
			fmt.Printf("threshold %s: mode=%s multiplier=%.4f sources=%d\n",
				key, a.Policy.Mode, a.Multiplier, len(a.PerSource))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newPCICmd() *cobra.Command {
	var flags cellFlags
	cmd := &cobra.Command{
		Use:   "pci",
		Short: "Compute the complexity trajectory from the thresholded waveform",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := flags.key()
			if err != nil {
				return err
			}
			pipeline, _, err := buildPipeline(flags.seed)
			if err != nil {
				return err
			}
			a, err := pipeline.PCI.Run(cmd.Context(), key, flags.force)
			if err != nil {
				return err
			}
			fmt.Printf("pci %s: %.4f over [%.3f, %.3f]s\n", key, a.PCI(), a.Tmin, a.Tmax)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newCorrelateCmd() *cobra.Command {
	var flags cellFlags
	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlate bootstrap samples against the behavioral covariate",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := flags.key()
			if err != nil {
				return err
			}
			pipeline, _, err := buildPipeline(flags.seed)
			if err != nil {
				return err
			}
			a, err := pipeline.Correlator.Run(cmd.Context(), key, flags.force)
			if err != nil {
				return err
			}
			fmt.Printf("correlation %s: covariate=%s map=%dx%d nperm=%d\n",
				key, a.Covariate, a.Map.Rows, a.Map.Cols, a.NPermutations)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunCmd() *cobra.Command {
	var flags cellFlags
	var withCorrelation bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline for one analysis cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := flags.key()
			if err != nil {
				return err
			}
			pipeline, _, err := buildPipeline(flags.seed)
			if err != nil {
				return err
			}
			return pipeline.RunAll(cmd.Context(), key, withCorrelation, flags.force)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&withCorrelation, "correlate", false, "Also run the correlation stage")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var event string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded stage states for an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, _, err := buildPipeline(0)
			if err != nil {
				return err
			}
			records, err := pipeline.Status(cmd.Context(), core.EventKey(event))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("no stages recorded for %s\n", event)
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%-40s %-12s %-12s batches=%d %s\n",
					rec.Key, rec.Stage, rec.Status, rec.BatchesDone, rec.UpdatedAt.Time().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "Epoching event (required)")
	cmd.MarkFlagRequired("event")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only pipeline status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			deps, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			server := ui.NewServer(deps.Ledger, deps.Artifacts)
			return server.Listen(":" + cfg.Server.Port)
		},
	}
	return cmd
}
