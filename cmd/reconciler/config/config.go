package config

import (
	"fmt"
	"strings"

	"timesheet-reconciliation-service/internal/matcher"
	"timesheet-reconciliation-service/internal/reconciler"
	"timesheet-reconciliation-service/internal/reporter"
	"timesheet-reconciliation-service/internal/sources"
	"timesheet-reconciliation-service/pkg/logger"
)

// CreateLoggerConfig creates the logger configuration for a CLI run. Logs go
// to stderr unless a file is given so that reports written to stdout stay
// machine readable.
func CreateLoggerConfig(level, format, file string, verbose bool) *logger.Config {
	config := logger.DefaultConfig()

	if verbose {
		config = logger.DebugConfig()
	} else if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if file != "" {
		config.Output = logger.FileOutput
		config.File = file
	}

	return config
}

// CreateTimesheetReaderConfig creates the reader configuration for Timesheet exports
func CreateTimesheetReaderConfig() *sources.ReaderConfig {
	return sources.DefaultReaderConfig()
}

// CreatePlanningReaderConfig creates the reader configuration for Planning
// exports. The amount column is read as a number when conversion is requested.
func CreatePlanningReaderConfig(amountField string) *sources.ReaderConfig {
	config := sources.DefaultReaderConfig()
	if amountField != "" {
		config.NumericColumns = []string{amountField}
	}
	return config
}

// CreateMatchingConfig creates a matching configuration with the CLI overrides
// applied. Without the project index Pass 2 only accepts exact composite keys.
func CreateMatchingConfig(projectField string, workers int, excludedPersons []string, projectIndex bool) *matcher.MatchingConfig {
	config := matcher.DefaultMatchingConfig()
	config.EnableProjectIndex = projectIndex

	if projectField != "" {
		config.ProjectField = projectField
	}
	if workers > 0 {
		config.Workers = workers
	}
	if excludedPersons != nil {
		config.ExcludedPersons = append([]string(nil), excludedPersons...)
	}

	return config
}

// CreateReconcilerConfig creates a reconciler configuration
func CreateReconcilerConfig(matching *matcher.MatchingConfig, baseCurrency string, hints bool) *reconciler.Config {
	config := reconciler.DefaultConfig()

	config.Matching = matching
	config.EnableHints = hints
	if baseCurrency != "" {
		config.BaseCurrency = strings.ToUpper(baseCurrency)
	}

	return config
}

// CreateConversionConfig returns nil when no amount field is given, which
// leaves Planning amounts untouched
func CreateConversionConfig(amountField, currencyField, fixedCurrency string) *reconciler.ConversionConfig {
	if amountField == "" {
		return nil
	}

	config := reconciler.DefaultConversionConfig()
	config.AmountField = amountField
	if currencyField != "" {
		config.CurrencyField = currencyField
	}
	if fixedCurrency != "" {
		config.Currency = strings.ToUpper(fixedCurrency)
	}

	return config
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
		config.IncludeDiscrepancies = true
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeMatched = true
		config.IncludeDiscrepancies = true
		config.MaxListItems = 0
	case "csv":
		config.Format = reporter.FormatCSV
		config.IncludeMatched = true
		config.IncludeProcessingStats = false
		config.MaxListItems = 0
	}

	return config
}

// ValidateConfig validates that all required configurations are valid
func ValidateConfig(readerConfigs []*sources.ReaderConfig, reconcilerConfig *reconciler.Config, conversion *reconciler.ConversionConfig) error {
	for i, rc := range readerConfigs {
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("invalid reader config %d: %w", i+1, err)
		}
	}

	if err := reconcilerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid reconciler config: %w", err)
	}

	if conversion != nil {
		if err := conversion.Validate(); err != nil {
			return fmt.Errorf("invalid conversion config: %w", err)
		}
	}

	return nil
}
