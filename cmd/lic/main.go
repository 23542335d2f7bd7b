/*
main.go - Batch LIC calculation

PURPOSE:
  Runs one valuation the way the year-end process does: read the input
  workbooks, calculate the LIC, validate it against the prior period,
  write the output workbooks and record the run.

SEQUENCE:
  1. Load configuration (.env, LIC_* environment, optional YAML file)
  2. Read inputs from the data directory workbooks, or from -inputs JSON
  3. Resolve the prior summary:
       -prior workbook, else lic_summary_<year-1>.xlsx in the output or
       data directory, else the latest stored run for year - 1
  4. runner.Execute (pipeline, validation, SQLite)
  5. Write <out>/lic_summary_<year>.xlsx and <out>/validation_checklist.xlsx
  6. Print a digest

EXIT STATUS:
  0  all checks passed
  1  the run could not be completed
  2  the run completed and at least one check failed

EXAMPLES:
  ./lic -data=./data -out=./output -year=2024
  ./lic -inputs=book.json -db=:memory:

SEE ALSO:
  - workbook/reader.go: Input workbook layouts
  - runner/runner.go: Execute
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/config"
	"github.com/warp/reserving-engine/factory"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/runner"
	"github.com/warp/reserving-engine/store/sqlite"
	"github.com/warp/reserving-engine/workbook"
)

const (
	exitOK      = 0
	exitError   = 1
	exitFlagged = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configFile string
	dataDir    string
	outDir     string
	dbPath     string
	inputsFile string
	priorFile  string
	year       int
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	flags := flag.NewFlagSet("lic", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&o.configFile, "config", "", "YAML configuration file")
	flags.StringVar(&o.dataDir, "data", "", "input workbook directory (overrides config)")
	flags.StringVar(&o.outDir, "out", "", "output directory (overrides config)")
	flags.StringVar(&o.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.StringVar(&o.inputsFile, "inputs", "", "JSON inputs document instead of workbooks")
	flags.StringVar(&o.priorFile, "prior", "", "prior period lic_summary workbook")
	flags.IntVar(&o.year, "year", 0, "valuation year (overrides config)")
	return o, flags.Parse(args)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return exitError
	}

	cfg, err := config.Load(opts.configFile, ".env")
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}
	applyFlags(cfg, opts)

	logger.SetLogger(logger.New(cfg.LoggerOptions()))
	log := logger.GetLogger().WithComponent("lic")

	policy, err := cfg.Policy()
	if err != nil {
		log.WithError(err).Error("Invalid reserving policy")
		return exitError
	}
	thresholds, err := cfg.Thresholds()
	if err != nil {
		log.WithError(err).Error("Invalid validation thresholds")
		return exitError
	}

	in, runOpts, err := loadInputs(cfg, opts, policy)
	if err != nil {
		log.WithError(err).Error("Failed to read inputs")
		return exitError
	}
	year := in.ValuationYear

	runOpts.Prior, err = loadPrior(cfg, opts, year)
	if err != nil {
		log.WithError(err).Error("Failed to read prior summary")
		return exitError
	}

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			log.WithError(err).Error("Failed to create database directory")
			return exitError
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		return exitError
	}
	defer store.Close()

	r := runner.New(store, policy, thresholds)
	out, err := r.Execute(ctx, in, runOpts)
	if err != nil {
		fmt.Fprintf(stdout, "Run %s FAILED: %v\n", out.Run.ID, err)
		return exitError
	}

	summaryPath := filepath.Join(cfg.Paths.OutputDir, workbook.SummaryFile(year))
	if err := workbook.WriteSummary(summaryPath, out.Result.Summary); err != nil {
		log.WithError(err).Error("Failed to write summary workbook")
		return exitError
	}
	checklistPath := filepath.Join(cfg.Paths.OutputDir, workbook.ChecklistFile)
	if err := workbook.WriteChecklist(checklistPath, out.Report); err != nil {
		log.WithError(err).Error("Failed to write checklist workbook")
		return exitError
	}

	printDigest(stdout, out, summaryPath, checklistPath)
	if !out.Report.Passed() {
		return exitFlagged
	}
	return exitOK
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.dataDir != "" {
		cfg.Paths.DataDir = opts.dataDir
	}
	if opts.outDir != "" {
		cfg.Paths.OutputDir = opts.outDir
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.year != 0 {
		cfg.Reserving.ValuationYear = opts.year
	}
}

// loadInputs reads the JSON document when one is given, otherwise the five
// workbooks. A JSON document carries its own valuation year and may
// override the policy.
func loadInputs(cfg *config.Config, opts options, policy reserving.Policy) (reserving.Inputs, runner.Options, error) {
	if opts.inputsFile != "" {
		in, p, err := factory.NewInputsFactory(policy).ParseFile(opts.inputsFile)
		if err != nil {
			return in, runner.Options{}, err
		}
		return in, runner.Options{Policy: &p, Source: "json:" + filepath.Base(opts.inputsFile)}, nil
	}

	in, err := workbook.ReadInputs(cfg.Paths.DataDir, cfg.Reserving.ValuationYear)
	return in, runner.Options{Source: "workbook:" + cfg.Paths.DataDir}, err
}

// loadPrior returns nil when no prior workbook exists so the runner falls
// back to the store.
func loadPrior(cfg *config.Config, opts options, year int) ([]reserving.SummaryRow, error) {
	if opts.priorFile != "" {
		return workbook.ReadSummary(opts.priorFile)
	}
	name := workbook.SummaryFile(year - 1)
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.DataDir} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}
		return workbook.ReadSummary(path)
	}
	return nil, nil
}

func printDigest(w io.Writer, out *runner.Outcome, summaryPath, checklistPath string) {
	total := decimal.Zero
	for _, row := range out.Result.Summary {
		total = total.Add(row.LICDiscounted)
	}

	fmt.Fprintf(w, "Run %s  valuation year %d  status %s\n", out.Run.ID, out.Run.ValuationYear, out.Run.Status)
	fmt.Fprintf(w, "  %d summary rows, horizon %d, total discounted LIC %s\n", len(out.Result.Summary), out.Run.Horizon, total.StringFixed(2))
	if out.PriorRunID != "" {
		fmt.Fprintf(w, "  compared with stored run %s\n", out.PriorRunID)
	}
	fmt.Fprintf(w, "  %s\n  %s\n", summaryPath, checklistPath)

	failures := out.Report.Failures()
	if len(failures) == 0 {
		fmt.Fprintln(w, "All checks passed.")
		return
	}

	fmt.Fprintf(w, "%d check(s) did not pass:\n", len(failures))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range failures {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.Severity, f.Check, f.LOB, f.Message)
	}
	tw.Flush()
}
