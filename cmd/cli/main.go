package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"goequity/adapters/excel"
	"goequity/adapters/modelio"
	"goequity/app"
	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/run"
	"goequity/internal"
	"goequity/internal/config"
	"goequity/internal/container"
	"goequity/internal/migration"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "goequity",
		Short: "Distributional cost-effectiveness analysis of health inequality",
		Long: `goequity stratifies fitted survival models into equal-probability
groups, measures inequality between them and propagates parameter
uncertainty through a Monte Carlo probabilistic sensitivity analysis.

Storage, defaults and logging are read from the environment (see .env):
DATABASE_URL, EQUITY_N_GROUPS, EQUITY_N_ITERATIONS, EQUITY_SEED, LOG_LEVEL, ...`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newBaseCaseCmd(),
		newPSACmd(),
		newShowCmd(),
		newListCmd(),
		newReplayCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type outputFlags struct {
	report   string
	jsonOut  bool
	zeroRule string
	groups   int
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.groups, "groups", 0, "Number of equal-probability groups (default from definition or EQUITY_N_GROUPS)")
	cmd.Flags().StringVar(&o.zeroRule, "zero-policy", "", "Relative change against a zero comparator: error|sentinel")
	cmd.Flags().StringVar(&o.report, "report", "", "Write a report to this path; the extension picks the format (.xlsx, .md, .html)")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print the full record as JSON")
}

func newBaseCaseCmd() *cobra.Command {
	var out outputFlags

	cmd := &cobra.Command{
		Use:   "basecase [definition-file]",
		Short: "Evaluate both arms at their point estimates",
		Long: `Run the deterministic base case: stratify each arm's survival
distribution at its point estimate and report AD, IG and the impact of the
intervention.

Example: goequity basecase screening.yaml --groups 5 --report base.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, svc, cleanup, err := setup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			req := requestFromDefinition(def)
			if out.groups != 0 {
				req.NGroups = out.groups
			}
			if out.zeroRule != "" {
				req.ZeroPolicy = out.zeroRule
			}

			record, err := svc.RunBaseCase(cmd.Context(), req)
			if err != nil {
				return err
			}
			return emit(cmd.Context(), cmd.OutOrStdout(), svc, record, out)
		},
	}
	out.register(cmd)
	return cmd
}

func newPSACmd() *cobra.Command {
	var (
		out            outputFlags
		iterations     int
		confidence     float64
		seed           uint64
		workers        int
		lenient        bool
		keepIterations bool
		quiet          bool
	)

	cmd := &cobra.Command{
		Use:   "psa [definition-file]",
		Short: "Run a probabilistic sensitivity analysis",
		Long: `Resample both fitted models from their multivariate-normal
sampling distributions, re-run the inequality pipeline for each draw and
summarise every output by mean and percentile interval.

Results are reproducible: the same definition, settings and seed give
identical summaries whatever the worker count.

Example: goequity psa screening.yaml --iterations 5000 --seed 12345 --lenient --report psa.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, svc, cleanup, err := setup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			req := requestFromDefinition(def)
			if out.groups != 0 {
				req.NGroups = out.groups
			}
			if out.zeroRule != "" {
				req.ZeroPolicy = out.zeroRule
			}
			if iterations != 0 {
				req.NIterations = iterations
			}
			if confidence != 0 {
				req.ConfidenceLevel = confidence
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			if lenient {
				req.FailureMode = string(inequality.FailureLenient)
			}
			req.Workers = workers
			req.KeepIterations = keepIterations || out.report != ""
			if !quiet {
				req.Progress = progressPrinter(cmd.ErrOrStderr())
			}

			record, err := svc.RunProbabilistic(cmd.Context(), req)
			if err != nil {
				return err
			}
			return emit(cmd.Context(), cmd.OutOrStdout(), svc, record, out)
		},
	}

	out.register(cmd)
	cmd.Flags().IntVar(&iterations, "iterations", 0, "Number of Monte Carlo iterations (default from definition or EQUITY_N_ITERATIONS)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence level of the percentile interval, in (0,1)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Base seed; iteration i uses seed+i")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (0 = number of CPUs)")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "Skip failing iterations instead of aborting")
	cmd.Flags().BoolVar(&keepIterations, "keep-iterations", false, "Retain the per-iteration table in the record")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not print progress")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [report.xlsx]",
		Short: "Print the manifest and summaries of an exported report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			wb, err := excel.ReadWorkbook(f)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, key := range []string{"analysis_id", "kind", "fingerprint", "seed", "code_version", "created_at"} {
				if v, ok := wb.Field(key); ok {
					fmt.Fprintf(w, "%-14s %s\n", key+":", v)
				}
			}
			summaries, err := wb.Summaries()
			if err != nil {
				// base-case reports have no summary sheet
				return nil
			}
			fmt.Fprintln(w)
			printSummaries(w, summaries)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses (requires DATABASE_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := newContainer(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := c.Service.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tSEED\tFINGERPRINT\tCREATED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID(), r.Kind(), r.Manifest.Seed,
					r.Manifest.Fingerprint.Fingerprint.Short(), r.Manifest.CreatedAt.Time().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum analyses to list")
	return cmd
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [analysis-id]",
		Short: "Re-run a stored analysis and check it reproduces (requires DATABASE_URL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseAnalysisID(args[0])
			if err != nil {
				return err
			}
			c, cleanup, err := newContainer(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer cleanup()

			fresh, reproduced, err := c.Service.Replay(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %s as %s\n", id, fresh.ID())
			if !reproduced {
				return fmt.Errorf("replay of %s did not reproduce the stored result", id)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "result reproduced exactly")
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema (requires DATABASE_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			db, err := sqlx.Connect("postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", runner.Version())
			return nil
		},
	}
}

// setup loads the definition file and builds the service
func setup(ctx context.Context, path string) (*modelio.Definition, *app.AnalysisService, func(), error) {
	def, err := modelio.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	c, cleanup, err := newContainer(ctx, false)
	if err != nil {
		return nil, nil, nil, err
	}
	return def, c.Service, cleanup, nil
}

// newContainer wires storage from DATABASE_URL; without it analyses live in
// memory for the duration of the command
func newContainer(ctx context.Context, requireDB bool) (*container.Container, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewDefaultLogger()

	c, err := container.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = c.Shutdown(context.Background()) }

	if !cfg.Database.Enabled() {
		if requireDB {
			return nil, nil, fmt.Errorf("DATABASE_URL is not set")
		}
		return c, cleanup, nil
	}
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return c, cleanup, nil
}

func requestFromDefinition(def *modelio.Definition) app.AnalysisRequest {
	return app.AnalysisRequest{
		Comparator:      def.Comparator,
		Intervention:    def.Intervention,
		NGroups:         def.Settings.NGroups,
		NIterations:     def.Settings.NIterations,
		ConfidenceLevel: def.Settings.ConfidenceLevel,
		Seed:            def.Settings.Seed,
		FailureMode:     def.Settings.FailureMode,
		ZeroPolicy:      def.Settings.ZeroPolicy,
	}
}

// emit prints the record and writes the optional report file
func emit(ctx context.Context, w io.Writer, svc *app.AnalysisService, record *run.Record, out outputFlags) error {
	if out.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(record); err != nil {
			return err
		}
	} else {
		printRecord(w, record)
	}

	if out.report == "" {
		return nil
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(out.report)), ".")
	if _, err := svc.Writer(format); err != nil {
		return err
	}
	f, err := os.Create(out.report)
	if err != nil {
		return err
	}
	if err := svc.Export(ctx, record, format, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nreport written to %s\n", out.report)
	return nil
}

func printRecord(w io.Writer, record *run.Record) {
	m := record.Manifest
	fmt.Fprintf(w, "analysis    %s (%s)\n", m.AnalysisID, m.Kind)
	fmt.Fprintf(w, "fingerprint %s\n", m.Fingerprint.Fingerprint.Short())
	fmt.Fprintf(w, "arms        %s vs %s, %d groups\n\n", m.Comparator.Family, m.Intervention.Family, m.Settings.NGroups)

	if b := record.BaseCase; b != nil {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "group\tcomparator\tintervention\t")
		for g := range b.Comparator {
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t\n", g+1, b.Comparator[g], b.Intervention[g])
		}
		tw.Flush()
		fmt.Fprintln(w)

		values := b.Result.Values()
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for i, name := range inequality.OutputNames {
			fmt.Fprintf(tw, "%s\t%s\n", name, formatFloat(values[i]))
		}
		tw.Flush()
	}

	if p := record.Probabilistic; p != nil {
		fmt.Fprintf(w, "iterations  %d (%d successful, %d skipped), seed %d, %d ms\n\n",
			p.Iterations, p.Successful, p.Skipped, p.BaseSeed, p.DurationMs)
		printSummaries(w, p.Summaries)
		for _, kind := range p.SkippedKinds() {
			fmt.Fprintf(w, "skipped %-20s %d\n", kind, p.SkippedByKind[kind])
		}
	}
}

func printSummaries(w io.Writer, summaries map[inequality.OutputName]inequality.SummaryStatistic) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "output\tmean\tlower\tupper\tsd\tn")
	for _, name := range inequality.OutputNames {
		s, ok := summaries[name]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", name,
			formatFloat(s.Mean), formatFloat(s.Lower), formatFloat(s.Upper), formatFloat(s.StdDev), s.N)
	}
	tw.Flush()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%.4f", v)
}

// progressPrinter writes a percentage line to w as iterations complete.
// The engine calls it from several workers at once.
func progressPrinter(w io.Writer) func(done, total int) {
	var (
		mu   sync.Mutex
		last = -1
	)
	return func(done, total int) {
		pct := done * 100 / total
		mu.Lock()
		defer mu.Unlock()
		if pct <= last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\r%3d%% (%d/%d)", pct, done, total)
		if done == total {
			fmt.Fprintln(w)
		}
	}
}
