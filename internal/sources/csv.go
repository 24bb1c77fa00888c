// Package sources reads the record sets and exchange rates a reconciliation
// run works on: Timesheet System and Planning Database exports (CSV or
// workbook), Planning Database snapshots over database/sql and the FX sheet.
//
// Records keep every column of the export in file order. Cells are strings
// unless the column is configured as numeric or date; empty cells and the
// configured null markers become null values, which the key builder treats
// as missing.
//
// Example usage:
//
//	reader := sources.NewExportReader(sources.DefaultReaderConfig())
//	records, stats, err := reader.ReadFile(ctx, "elapseit_export.csv")
package sources

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// ReaderConfig holds configuration for reading export files
type ReaderConfig struct {
	HasHeader        bool     `json:"has_header" mapstructure:"has_header"`
	Delimiter        rune     `json:"delimiter" mapstructure:"delimiter"`
	TrimLeadingSpace bool     `json:"trim_leading_space" mapstructure:"trim_leading_space"`
	SkipEmptyRows    bool     `json:"skip_empty_rows" mapstructure:"skip_empty_rows"`
	ValidateEncoding bool     `json:"validate_encoding" mapstructure:"validate_encoding"`
	MaxFieldSize     int      `json:"max_field_size" mapstructure:"max_field_size"`
	Sheet            string   `json:"sheet" mapstructure:"sheet"`
	RequiredColumns  []string `json:"required_columns" mapstructure:"required_columns"`
	NumericColumns   []string `json:"numeric_columns" mapstructure:"numeric_columns"`
	DateColumns      []string `json:"date_columns" mapstructure:"date_columns"`
	DateLayouts      []string `json:"date_layouts" mapstructure:"date_layouts"`
	NullValues       []string `json:"null_values" mapstructure:"null_values"`
}

// DefaultReaderConfig returns a configuration with sensible defaults
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
		MaxFieldSize:     1000000,
		DateLayouts:      []string{models.DateLayout, "2006/01/02", "02/01/2006", time.RFC3339},
		NullValues:       []string{"nan", "NaN", "None", "NULL"},
	}
}

// Validate checks if the reader configuration is valid
func (rc *ReaderConfig) Validate() error {
	if rc.Delimiter == 0 || rc.Delimiter == '\n' || rc.Delimiter == '\r' || rc.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", rc.Delimiter)
	}
	if len(rc.DateColumns) > 0 && len(rc.DateLayouts) == 0 {
		return fmt.Errorf("date columns need at least one date layout")
	}
	for _, c := range rc.NumericColumns {
		for _, d := range rc.DateColumns {
			if c == d {
				return fmt.Errorf("column %q cannot be both numeric and date", c)
			}
		}
	}
	return nil
}

// ReadStats holds statistics about a read operation
type ReadStats struct {
	File         string
	TotalLines   int
	RecordsRead  int
	EmptySkipped int
	NullCells    int
}

// String returns a human-readable summary of read statistics
func (rs *ReadStats) String() string {
	return fmt.Sprintf("%s: %d lines, %d records, %d empty rows skipped, %d null cells",
		rs.File, rs.TotalLines, rs.RecordsRead, rs.EmptySkipped, rs.NullCells)
}

// ExportReader turns export files into records
type ExportReader struct {
	config  *ReaderConfig
	numeric map[string]bool
	dates   map[string]bool
	nulls   map[string]bool
	logger  logger.Logger
}

// NewExportReader creates a reader with the given configuration
func NewExportReader(config *ReaderConfig) *ExportReader {
	if config == nil {
		config = DefaultReaderConfig()
	}

	er := &ExportReader{
		config:  config,
		numeric: toSet(config.NumericColumns),
		dates:   toSet(config.DateColumns),
		nulls:   toSet(config.NullValues),
		logger:  logger.GetGlobalLogger().WithComponent("export_reader"),
	}

	er.logger.WithFields(logger.Fields{
		"has_header":      config.HasHeader,
		"delimiter":       string(config.Delimiter),
		"numeric_columns": config.NumericColumns,
		"date_columns":    config.DateColumns,
	}).Debug("Created export reader")

	return er
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// ReadFile reads one export. The format follows the file extension:
// .xlsx and .xlsm are workbooks, anything else is read as delimited text.
func (er *ExportReader) ReadFile(ctx context.Context, path string) ([]*models.Record, *ReadStats, error) {
	if err := er.config.Validate(); err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reader", nil, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return er.readWorkbook(ctx, path)
	default:
		return er.readCSV(ctx, path)
	}
}

func (er *ExportReader) readCSV(ctx context.Context, path string) ([]*models.Record, *ReadStats, error) {
	file, reader, err := er.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	rows := &csvRows{reader: reader}
	return er.readRows(ctx, path, rows)
}

// rowSource yields raw rows; io.EOF ends the stream. Line reports the
// physical line the last row started on.
type rowSource interface {
	Next() ([]string, error)
	Line() int
}

type csvRows struct {
	reader *csv.Reader
	line   int
}

func (c *csvRows) Next() ([]string, error) {
	row, err := c.reader.Read()
	if err != nil {
		if pe, ok := err.(*csv.ParseError); ok {
			c.line = pe.Line
		}
		return nil, err
	}
	c.line, _ = c.reader.FieldPos(0)
	return row, nil
}

func (c *csvRows) Line() int {
	return c.line
}

// openFile opens a CSV file and returns a configured csv.Reader
func (er *ExportReader) openFile(path string) (*os.File, *csv.Reader, error) {
	er.logger.WithField("file_path", path).Debug("Opening export file")

	file, err := os.Open(path)
	if err != nil {
		er.logger.WithError(err).WithField("file_path", path).Error("Failed to open export file")
		return nil, nil, classifyOpenError(path, err)
	}

	if er.config.ValidateEncoding {
		if err := er.validateEncoding(file, path); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = er.config.Delimiter
	reader.TrimLeadingSpace = er.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return file, reader, nil
}

func classifyOpenError(path string, err error) error {
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return errors.FileError(errors.CodeFileCorrupted, path, err)
}

// validateEncoding checks if the first lines of the file are valid UTF-8
func (er *ExportReader) validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), er.config.MaxFieldSize+64*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeInvalidFormat, path, lineNum, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

// readRows builds records from a row stream, the header row first
func (er *ExportReader) readRows(ctx context.Context, path string, rows rowSource) ([]*models.Record, *ReadStats, error) {
	stats := &ReadStats{File: path}
	base := filepath.Base(path)

	headers, err := er.readHeaders(path, rows, stats)
	if err != nil {
		return nil, stats, err
	}

	var records []*models.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, errors.InternalError(errors.CodeUnexpectedError, "export_reading", err)
		}

		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, errors.ParseError(errors.CodeInvalidFormat, path, rows.Line(), "", "", err)
		}
		line := rows.Line()
		stats.TotalLines = line

		// Blank lines never reach here; rows of blank cells do
		if er.config.SkipEmptyRows && isEmptyRow(row) {
			stats.EmptySkipped++
			continue
		}

		record, err := er.buildRecord(fmt.Sprintf("%s:%d", base, line), path, line, stats, headers, row)
		if err != nil {
			return nil, stats, err
		}
		records = append(records, record)
		stats.RecordsRead++
	}

	er.logger.WithFields(logger.Fields{
		"file_path": path,
		"records":   stats.RecordsRead,
		"skipped":   stats.EmptySkipped,
	}).Info("Export file read")

	return records, stats, nil
}

// readHeaders reads and validates the header row
func (er *ExportReader) readHeaders(path string, rows rowSource, stats *ReadStats) ([]string, error) {
	if !er.config.HasHeader {
		if len(er.config.RequiredColumns) == 0 {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "required_columns", nil,
				fmt.Errorf("files without a header row need the column names configured"))
		}
		return append([]string(nil), er.config.RequiredColumns...), nil
	}

	row, err := rows.Next()
	if err == io.EOF {
		return nil, errors.ParseError(errors.CodeMissingColumn, path, 1, "headers", "", fmt.Errorf("file is empty")).
			WithSuggestion("ensure the file contains a header row and data rows")
	}
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 1, "headers", "", err)
	}
	stats.TotalLines = rows.Line()

	headers := make([]string, len(row))
	for i, h := range row {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	if missing := missingColumns(er.config.RequiredColumns, headers); len(missing) > 0 {
		er.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": headers,
		}).Error("Required headers are missing")
		return nil, errors.ParseError(errors.CodeMissingColumn, path, 1, strings.Join(missing, ", "), "", nil).
			WithSuggestion(fmt.Sprintf("ensure the export contains these headers: %s", strings.Join(missing, ", ")))
	}

	er.logger.WithField("headers", headers).Debug("Successfully read headers")
	return headers, nil
}

func missingColumns(required, headers []string) []string {
	present := toSet(headers)
	var missing []string
	for _, c := range required {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// buildRecord converts one row. Short rows are padded with nulls; cells past
// the last header are ignored.
func (er *ExportReader) buildRecord(origin, path string, line int, stats *ReadStats, headers, row []string) (*models.Record, error) {
	record := models.NewRecord(origin)

	for i, name := range headers {
		if name == "" {
			continue
		}

		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if er.config.MaxFieldSize > 0 && len(cell) > er.config.MaxFieldSize {
			return nil, errors.ParseError(errors.CodeInvalidData, path, line, name, cell[:min(len(cell), 50)]+"...",
				fmt.Errorf("field size limit exceeded")).
				WithSuggestion(fmt.Sprintf("reduce field size to under %d bytes", er.config.MaxFieldSize))
		}

		value, err := er.convert(name, cell)
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, path, line, name, cell, err)
		}
		if value.IsNull() {
			stats.NullCells++
		}
		record.Set(name, value)
	}

	return record, nil
}

// convert types one cell. String cells are kept byte-for-byte so keys
// built from them match the export exactly.
func (er *ExportReader) convert(column, cell string) (models.Value, error) {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" || er.nulls[trimmed] {
		return models.Null(), nil
	}

	switch {
	case er.numeric[column]:
		d, err := decimal.NewFromString(strings.ReplaceAll(trimmed, ",", ""))
		if err != nil {
			return models.Null(), fmt.Errorf("not a number: %w", err)
		}
		return models.NumberValue(d), nil
	case er.dates[column]:
		for _, layout := range er.config.DateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return models.DateValue(t), nil
			}
		}
		return models.Null(), fmt.Errorf("date does not match any of %v", er.config.DateLayouts)
	default:
		return models.StringValue(cell), nil
	}
}
