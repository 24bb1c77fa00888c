package config

import (
	"testing"

	"timesheet-reconciliation-service/internal/matcher"
	"timesheet-reconciliation-service/internal/reconciler"
	"timesheet-reconciliation-service/internal/reporter"
	"timesheet-reconciliation-service/internal/sources"
	"timesheet-reconciliation-service/pkg/logger"
)

func TestCreateLoggerConfig(t *testing.T) {
	tests := []struct {
		name           string
		level          string
		format         string
		file           string
		verbose        bool
		expectedLevel  logger.Level
		expectedFormat logger.Format
		expectedOutput logger.Output
	}{
		{"defaults", "", "", "", false, logger.InfoLevel, logger.TextFormat, logger.StderrOutput},
		{"explicit", "WARN", "json", "", false, logger.WarnLevel, logger.JSONFormat, logger.StderrOutput},
		{"verbose wins", "error", "", "", true, logger.DebugLevel, logger.TextFormat, logger.StderrOutput},
		{"log file", "", "", "logs/run.log", false, logger.InfoLevel, logger.TextFormat, logger.FileOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := CreateLoggerConfig(tt.level, tt.format, tt.file, tt.verbose)

			if config.Level != tt.expectedLevel {
				t.Errorf("expected level %s, got %s", tt.expectedLevel, config.Level)
			}
			if config.Format != tt.expectedFormat {
				t.Errorf("expected format %s, got %s", tt.expectedFormat, config.Format)
			}
			if config.Output != tt.expectedOutput {
				t.Errorf("expected output %s, got %s", tt.expectedOutput, config.Output)
			}
			if config.File != tt.file {
				t.Errorf("expected log file %q, got %q", tt.file, config.File)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("logger config should be valid: %v", err)
			}
		})
	}
}

func TestCreateReaderConfigs(t *testing.T) {
	timesheet := CreateTimesheetReaderConfig()
	if !timesheet.HasHeader || timesheet.Delimiter != ',' {
		t.Errorf("unexpected timesheet reader config %+v", timesheet)
	}

	planning := CreatePlanningReaderConfig("cost")
	if len(planning.NumericColumns) != 1 || planning.NumericColumns[0] != "cost" {
		t.Errorf("expected cost as numeric column, got %v", planning.NumericColumns)
	}

	if plain := CreatePlanningReaderConfig(""); len(plain.NumericColumns) != 0 {
		t.Errorf("expected no numeric columns, got %v", plain.NumericColumns)
	}
}

func TestCreateMatchingConfig(t *testing.T) {
	tests := []struct {
		name         string
		projectField string
		workers      int
		excluded     []string
		strictKeys   bool
		expected     *matcher.MatchingConfig
	}{
		{
			name:     "defaults",
			expected: matcher.DefaultMatchingConfig(),
		},
		{
			name:       "strict keys",
			strictKeys: true,
			expected: &matcher.MatchingConfig{
				ProjectField:    "Project",
				PersonField:     "Person",
				ExcludedPersons: []string{matcher.DefaultExcludedPerson},
				Workers:         1,
			},
		},
		{
			name:         "overrides",
			projectField: "Job",
			workers:      8,
			excluded:     []string{"Bench", "Leave"},
			expected: &matcher.MatchingConfig{
				ProjectField:       "Job",
				PersonField:        "Person",
				ExcludedPersons:    []string{"Bench", "Leave"},
				EnableProjectIndex: true,
				Workers:            8,
			},
		},
		{
			name:     "empty exclusion list",
			excluded: []string{},
			expected: &matcher.MatchingConfig{
				ProjectField:       "Project",
				PersonField:        "Person",
				ExcludedPersons:    []string{},
				EnableProjectIndex: true,
				Workers:            1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := CreateMatchingConfig(tt.projectField, tt.workers, tt.excluded, !tt.strictKeys)

			if config.String() != tt.expected.String() {
				t.Errorf("expected %s, got %s", tt.expected, config)
			}
			for i, p := range tt.expected.ExcludedPersons {
				if config.ExcludedPersons[i] != p {
					t.Errorf("expected excluded person %s at %d, got %s", p, i, config.ExcludedPersons[i])
				}
			}
			if err := config.Validate(); err != nil {
				t.Errorf("matching config should be valid: %v", err)
			}
		})
	}
}

func TestCreateReconcilerConfig(t *testing.T) {
	matching := matcher.DefaultMatchingConfig()
	config := CreateReconcilerConfig(matching, "usd", false)

	if config.Matching != matching {
		t.Errorf("expected the given matching config")
	}
	if config.BaseCurrency != "USD" {
		t.Errorf("expected USD, got %s", config.BaseCurrency)
	}
	if config.EnableHints {
		t.Errorf("expected hints disabled")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("reconciler config should be valid: %v", err)
	}

	if CreateReconcilerConfig(matching, "", true).BaseCurrency != reconciler.DefaultConfig().BaseCurrency {
		t.Errorf("expected default base currency")
	}
}

func TestCreateConversionConfig(t *testing.T) {
	if CreateConversionConfig("", "currency", "") != nil {
		t.Errorf("expected no conversion without an amount field")
	}

	config := CreateConversionConfig("cost", "", "eur")
	if config.AmountField != "cost" || config.CurrencyField != "currency" || config.Currency != "EUR" {
		t.Errorf("unexpected conversion config %+v", config)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("conversion config should be valid: %v", err)
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format         string
		expectedFormat reporter.OutputFormat
		includeMatched bool
		includeStats   bool
		maxListItems   int
	}{
		{"console", reporter.FormatConsole, false, true, 50},
		{"json", reporter.FormatJSON, true, true, 0},
		{"csv", reporter.FormatCSV, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config := CreateReportConfig(tt.format)

			if config.Format != tt.expectedFormat {
				t.Errorf("expected format %s, got %s", tt.expectedFormat, config.Format)
			}
			if config.IncludeMatched != tt.includeMatched {
				t.Errorf("expected IncludeMatched %v", tt.includeMatched)
			}
			if config.IncludeProcessingStats != tt.includeStats {
				t.Errorf("expected IncludeProcessingStats %v", tt.includeStats)
			}
			if config.MaxListItems != tt.maxListItems {
				t.Errorf("expected MaxListItems %d, got %d", tt.maxListItems, config.MaxListItems)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("report config should be valid: %v", err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	readers := []*sources.ReaderConfig{CreateTimesheetReaderConfig(), CreatePlanningReaderConfig("cost")}
	valid := CreateReconcilerConfig(matcher.DefaultMatchingConfig(), "ZAR", true)

	if err := ValidateConfig(readers, valid, CreateConversionConfig("cost", "currency", "")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	badReader := CreateTimesheetReaderConfig()
	badReader.Delimiter = '"'
	if err := ValidateConfig([]*sources.ReaderConfig{badReader}, valid, nil); err == nil {
		t.Errorf("expected error for invalid reader config")
	}

	badMatching := CreateMatchingConfig("", 100, nil, true)
	if err := ValidateConfig(readers, CreateReconcilerConfig(badMatching, "ZAR", true), nil); err == nil {
		t.Errorf("expected error for invalid matching config")
	}

	if err := ValidateConfig(readers, valid, &reconciler.ConversionConfig{CurrencyField: "currency"}); err == nil {
		t.Errorf("expected error for conversion without amount field")
	}
}
