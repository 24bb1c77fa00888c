package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"timesheet-reconciliation-service/cmd/reconciler/config"
	"timesheet-reconciliation-service/internal/matcher"
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/internal/reconciler"
	"timesheet-reconciliation-service/internal/reporter"
	"timesheet-reconciliation-service/internal/sources"
	"timesheet-reconciliation-service/pkg/logger"
)

// Flags for the reconcile command
var (
	rulesFile      string
	clientMapFile  string
	timesheetFiles []string
	planningFiles  []string
	planningDSN    string
	planningDriver string
	planningQuery  string
	fxFile         string
	asOf           string
	baseCurrency   string
	outputFormat   string
	outputFile     string
	metricsFile    string
	showProgress   bool

	// Matching and conversion flags
	projectField         string
	workers              int
	excludedPersons      []string
	disableHints         bool
	strictKeys           bool
	convertField         string
	convertCurrencyField string
	convertCurrency      string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile timesheet entries with planning allocations",
	Long: `Reconcile builds a composite key for every Timesheet System entry and every
Planning Database allocation using the rules of a mapping workbook, then
matches them in two passes: exact composite keys first, multimatch project
rules second. Unmatched entries get a near-miss hint when a similar planning
key exists.

By default Pass 2 also accepts a planning record of the same person whose
project equals the rewritten multimatch key when no composite key matches it.
Use --strict-keys to limit Pass 2 to composite key lookups.

This command requires:
- A mapping rules file (.xlsx workbook or .yaml)
- One or more Timesheet System export files (CSV or xlsx)
- Planning records, from export files or a database snapshot

Examples:
  # Basic reconciliation from two exports
  reconciler reconcile --rules mapping_config.xlsx \
    --timesheet-file elapseit.csv --planning-file vision.csv

  # Planning records from a database snapshot with a client mapper
  reconciler reconcile --rules mapping_config.xlsx --client-map client_mapper.xlsx \
    --timesheet-file elapseit.csv --planning-dsn vision.db

  # Convert planning costs to ZAR and write a CSV report plus metrics
  reconciler reconcile --rules rules.yaml --timesheet-file ts.csv --planning-file plan.csv \
    --fx-file fx_rates.xlsx --convert-field cost --convert-currency-field currency \
    --output-format csv --output-file report.csv --metrics-file run.prom`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "mapping rules workbook (.xlsx) or YAML file (required)")
	reconcileCmd.Flags().StringVar(&clientMapFile, "client-map", "", "ElapseIT to Vision client mapper (.xlsx or .csv)")
	reconcileCmd.Flags().StringSliceVarP(&timesheetFiles, "timesheet-file", "t", []string{}, "comma-separated Timesheet System export files (required)")
	reconcileCmd.Flags().StringSliceVarP(&planningFiles, "planning-file", "p", []string{}, "comma-separated Planning Database export files")
	reconcileCmd.Flags().StringVar(&planningDSN, "planning-dsn", "", "Planning Database connection string, used instead of --planning-file")
	reconcileCmd.Flags().StringVar(&planningDriver, "planning-driver", sources.DefaultPlanningDriver, "database/sql driver for --planning-dsn")
	reconcileCmd.Flags().StringVar(&planningQuery, "planning-query", "", "query returning planning rows (default: latest simulation allocations)")

	// Currency flags
	reconcileCmd.Flags().StringVar(&fxFile, "fx-file", "", "exchange rate table (.xlsx sheet ExchangeRates or .csv)")
	reconcileCmd.Flags().StringVar(&asOf, "as-of", "", "use the latest rate on or before this date (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&baseCurrency, "base-currency", models.DefaultBaseCurrency, "base currency of converted amounts")
	reconcileCmd.Flags().StringVar(&convertField, "convert-field", "", "planning amount field to convert into the base currency")
	reconcileCmd.Flags().StringVar(&convertCurrencyField, "convert-currency-field", "currency", "planning field holding the amount currency")
	reconcileCmd.Flags().StringVar(&convertCurrency, "convert-currency", "", "currency of every planning amount, used when the currency field is empty")

	// Matching flags
	reconcileCmd.Flags().StringVar(&projectField, "project-field", "Project", "semantic field compared with multimatch source patterns")
	reconcileCmd.Flags().IntVarP(&workers, "workers", "w", 1, "goroutines building composite keys")
	reconcileCmd.Flags().StringSliceVar(&excludedPersons, "exclude-person", []string{matcher.DefaultExcludedPerson}, "person values whose timesheet entries are skipped")
	reconcileCmd.Flags().BoolVar(&disableHints, "no-hints", false, "do not look for near-miss keys of unmatched entries")
	reconcileCmd.Flags().BoolVar(&strictKeys, "strict-keys", false, "match multimatch rewrites by composite key only, without the person+project index")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	reconcileCmd.MarkFlagRequired("rules")
	reconcileCmd.MarkFlagRequired("timesheet-file")

	for _, name := range []string{
		"rules", "client-map", "timesheet-file", "planning-file", "planning-dsn", "planning-driver",
		"planning-query", "fx-file", "as-of", "base-currency", "convert-field", "convert-currency-field",
		"convert-currency", "project-field", "workers", "exclude-person", "no-hints", "strict-keys", "output-format",
		"output-file", "metrics-file", "progress",
	} {
		viper.BindPFlag(name, reconcileCmd.Flags().Lookup(name))
	}
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and environment)
	rulesFile = viper.GetString("rules")
	clientMapFile = viper.GetString("client-map")
	timesheetFiles = viper.GetStringSlice("timesheet-file")
	planningFiles = viper.GetStringSlice("planning-file")
	planningDSN = viper.GetString("planning-dsn")
	planningDriver = viper.GetString("planning-driver")
	planningQuery = viper.GetString("planning-query")
	fxFile = viper.GetString("fx-file")
	asOf = viper.GetString("as-of")
	baseCurrency = viper.GetString("base-currency")
	convertField = viper.GetString("convert-field")
	convertCurrencyField = viper.GetString("convert-currency-field")
	convertCurrency = viper.GetString("convert-currency")
	projectField = viper.GetString("project-field")
	workers = viper.GetInt("workers")
	excludedPersons = viper.GetStringSlice("exclude-person")
	disableHints = viper.GetBool("no-hints")
	strictKeys = viper.GetBool("strict-keys")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	metricsFile = viper.GetString("metrics-file")
	showProgress = viper.GetBool("progress")

	if outputFormat == "" {
		outputFormat = "console"
	}
	if planningDriver == "" {
		planningDriver = sources.DefaultPlanningDriver
	}
	if baseCurrency == "" {
		baseCurrency = models.DefaultBaseCurrency
	}
	if workers == 0 {
		workers = 1
	}

	if rulesFile == "" {
		return fmt.Errorf("rules is required")
	}
	if len(timesheetFiles) == 0 {
		return fmt.Errorf("at least one timesheet-file is required")
	}
	if len(planningFiles) == 0 && planningDSN == "" {
		return fmt.Errorf("either planning-file or planning-dsn is required")
	}
	if len(planningFiles) > 0 && planningDSN != "" {
		return fmt.Errorf("planning-file and planning-dsn cannot be combined")
	}

	if err := validateFileExists(rulesFile, "rules file"); err != nil {
		return err
	}
	if clientMapFile != "" {
		if err := validateFileExists(clientMapFile, "client map"); err != nil {
			return err
		}
	}
	for i, path := range timesheetFiles {
		if err := validateFileExists(path, fmt.Sprintf("timesheet file %d", i+1)); err != nil {
			return err
		}
	}
	for i, path := range planningFiles {
		if err := validateFileExists(path, fmt.Sprintf("planning file %d", i+1)); err != nil {
			return err
		}
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if fxFile != "" {
		if err := validateFileExists(fxFile, "exchange rate file"); err != nil {
			return err
		}
	}
	if convertField != "" && fxFile == "" {
		return fmt.Errorf("convert-field needs an exchange rate file (fx-file)")
	}
	if asOf != "" {
		if _, err := time.Parse(models.DateLayout, asOf); err != nil {
			return fmt.Errorf("invalid as-of date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if len(strings.TrimSpace(baseCurrency)) != 3 {
		return fmt.Errorf("base currency must be a three letter code, got '%s'", baseCurrency)
	}

	if workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	for _, path := range []string{outputFile, metricsFile} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithFields(logger.Fields{
		"rules":     rulesFile,
		"timesheet": strings.Join(timesheetFiles, ", "),
		"format":    outputFormat,
	}).Info("Starting reconciliation")

	// Create configurations
	matchingConfig := config.CreateMatchingConfig(projectField, workers, excludedPersons, !strictKeys)
	reconcilerConfig := config.CreateReconcilerConfig(matchingConfig, baseCurrency, !disableHints)
	conversionConfig := config.CreateConversionConfig(convertField, convertCurrencyField, convertCurrency)
	timesheetReader := config.CreateTimesheetReaderConfig()
	planningReader := config.CreatePlanningReaderConfig(convertField)

	if err := config.ValidateConfig([]*sources.ReaderConfig{timesheetReader, planningReader}, reconcilerConfig, conversionConfig); err != nil {
		return err
	}

	request := &reconciler.Request{
		RulesPath:     rulesFile,
		ClientMapPath: clientMapFile,
		Timesheet:     sources.NewFileSource(sources.NewExportReader(timesheetReader), reconcilerConfig.MaxConcurrentFiles, timesheetFiles...),
		Conversion:    conversionConfig,
	}

	if planningDSN != "" {
		db, err := sources.OpenPlanningDB(ctx, planningDriver, planningDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		request.Planning = sources.NewPlanningDBReader(db, planningQuery)
	} else {
		request.Planning = sources.NewFileSource(sources.NewExportReader(planningReader), reconcilerConfig.MaxConcurrentFiles, planningFiles...)
	}

	if fxFile != "" {
		rates, err := sources.NewRateSheetReader().ReadRates(ctx, fxFile)
		if err != nil {
			return err
		}
		request.Rates = rates
	}
	if asOf != "" {
		t, _ := time.Parse(models.DateLayout, asOf)
		request.RatesAsOf = &t
	}

	service, err := reconciler.NewService(reconcilerConfig)
	if err != nil {
		return err
	}
	service.WithLogger(logger.GetGlobalLogger())

	if showProgress {
		service.AddProgressCallback(func(progress reconciler.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	result, err := service.Run(ctx, request)
	if showProgress {
		fmt.Fprintf(os.Stderr, "\n")
	}
	if err != nil {
		return err
	}

	if err := writeReport(result, log); err != nil {
		return err
	}

	if metricsFile != "" {
		if err := result.WriteMetrics(metricsFile); err != nil {
			return err
		}
		log.WithField("file", metricsFile).Info("Metrics written")
	}

	if viper.GetBool("verbose") {
		s := result.Summary
		fmt.Fprintf(os.Stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(os.Stderr, "Processed %d timesheet entries and %d planning records.\n",
			s.TimesheetRecords, s.PlanningRecords)
		fmt.Fprintf(os.Stderr, "Matched %d (composite %d, multimatch %d), unmatched %d, skipped %d.\n",
			s.Matched(), s.Composite, s.Multimatch, s.Unmatched, s.Skipped)
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", result.Duration)
	}

	return nil
}

func writeReport(result *reconciler.Result, log logger.Logger) error {
	generator, err := reporter.NewSafeReportGenerator(config.CreateReportConfig(outputFormat), log)
	if err != nil {
		return err
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	return generator.GenerateReportSafely(result, output)
}
