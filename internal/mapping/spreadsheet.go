package mapping

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// Sheet names of the rule workbook
const (
	SheetFieldMappings    = "Field_Mappings"
	SheetCompositeKeys    = "Composite_Keys"
	SheetClientExtraction = "Client_Extraction"
	SheetMultimatcher     = "Multimatcher"
	SheetInstructions     = "Instructions"
)

// Required header columns per sheet. Description and example columns are optional.
var requiredColumns = map[string][]string{
	SheetFieldMappings:    {"Field_Mapping_ID", "ElapseIT_Field", "Vision_Field", "Is_Active"},
	SheetCompositeKeys:    {"Composite_Key_ID", "System", "Composite_Key_Formula", "Is_Active"},
	SheetClientExtraction: {"Rule_ID", "System", "Field_Name", "Extraction_Method", "Extraction_Formula", "Is_Active"},
	SheetMultimatcher:     {"Rule_ID", "ElapseIT_Project", "Vision_Project", "Is_Active"},
}

// SpreadsheetStore reads rules from an .xlsx workbook
type SpreadsheetStore struct {
	path string
}

// NewSpreadsheetStore creates a store for the workbook at path
func NewSpreadsheetStore(path string) *SpreadsheetStore {
	return &SpreadsheetStore{path: path}
}

// Source returns the workbook path
func (s *SpreadsheetStore) Source() string {
	return s.path
}

// Load reads and validates all rule sheets
func (s *SpreadsheetStore) Load(ctx context.Context) (*models.RuleSet, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: s.path}, "rule workbook not found",
			errors.FileError(errors.CodeFileNotFound, s.path, err))
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: s.path}, "cannot open rule workbook",
			errors.FileError(errors.CodeFileCorrupted, s.path, err))
	}
	defer f.Close()

	a := newAssembler(s.path)
	readers := []struct {
		sheet string
		read  func(*sheetTable)
	}{
		{SheetFieldMappings, a.readFieldMappings},
		{SheetCompositeKeys, a.readCompositeKeys},
		{SheetClientExtraction, a.readClientExtraction},
		{SheetMultimatcher, a.readMultimatch},
	}

	for _, r := range readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := openSheet(f, s.path, r.sheet)
		if err != nil {
			return nil, err
		}
		r.read(table)
	}

	return a.result()
}

// sheetTable is a header-indexed view of one sheet
type sheetTable struct {
	source string
	sheet  string
	header map[string]int
	rows   [][]string
}

func openSheet(f *excelize.File, source, sheet string) (*sheetTable, error) {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: source, Sheet: sheet}, "sheet not found", nil)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: source, Sheet: sheet}, "cannot read sheet", err)
	}
	if len(rows) == 0 {
		return nil, errors.MissingColumnsError(source, sheet, requiredColumns[sheet], nil)
	}

	return newSheetTable(source, sheet, rows[0], rows[1:])
}

func newSheetTable(source, sheet string, header []string, rows [][]string) (*sheetTable, error) {
	t := &sheetTable{
		source: source,
		sheet:  sheet,
		header: make(map[string]int, len(header)),
		rows:   rows,
	}
	for i, col := range header {
		t.header[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range requiredColumns[sheet] {
		if _, ok := t.header[strings.ToLower(col)]; !ok {
			return nil, errors.MissingColumnsError(source, sheet, requiredColumns[sheet], header)
		}
	}
	return t, nil
}

// cell returns the trimmed value of column in row, tolerating short rows
func (t *sheetTable) cell(row []string, column string) string {
	idx, ok := t.header[strings.ToLower(column)]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// each calls fn for every non-blank data row with its 1-based sheet row number
func (t *sheetTable) each(fn func(row []string, loc *errors.RuleContext)) {
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		fn(row, &errors.RuleContext{Source: t.source, Sheet: t.sheet, Row: i + 2})
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (a *assembler) active(t *sheetTable, row []string, loc *errors.RuleContext) (bool, bool) {
	active, ok := parseActive(t.cell(row, "Is_Active"))
	if !ok {
		loc.Column = "Is_Active"
		a.errs.Add(errors.ConfigLoadError(loc, fmt.Sprintf("Is_Active must be Yes or No, got %q", t.cell(row, "Is_Active")), nil))
	}
	return active, ok
}

func (a *assembler) readFieldMappings(t *sheetTable) {
	t.each(func(row []string, loc *errors.RuleContext) {
		active, ok := a.active(t, row, loc)
		if !ok {
			return
		}
		a.addFieldMapping(&models.FieldMappingRule{
			ID:          t.cell(row, "Field_Mapping_ID"),
			SourceField: t.cell(row, "ElapseIT_Field"),
			TargetField: t.cell(row, "Vision_Field"),
			Description: t.cell(row, "Description"),
			Active:      active,
		}, loc)
	})
}

func (a *assembler) readCompositeKeys(t *sheetTable) {
	t.each(func(row []string, loc *errors.RuleContext) {
		active, ok := a.active(t, row, loc)
		if !ok {
			return
		}
		system, err := models.ParseSystem(t.cell(row, "System"))
		if err != nil {
			loc.Column = "System"
			a.errs.Add(errors.ConfigLoadError(loc, err.Error(), nil))
			return
		}
		a.addCompositeKey(&models.CompositeKeyRule{
			ID:          t.cell(row, "Composite_Key_ID"),
			System:      system,
			Formula:     models.ParseFormula(t.cell(row, "Composite_Key_Formula")),
			Description: t.cell(row, "Description"),
			Active:      active,
		}, loc)
	})
}

func (a *assembler) readClientExtraction(t *sheetTable) {
	t.each(func(row []string, loc *errors.RuleContext) {
		active, ok := a.active(t, row, loc)
		if !ok {
			return
		}
		system, err := models.ParseSystem(t.cell(row, "System"))
		if err != nil {
			loc.Column = "System"
			a.errs.Add(errors.ConfigLoadError(loc, err.Error(), nil))
			return
		}
		rule, err := newExtractionRule(
			t.cell(row, "Extraction_Method"),
			t.cell(row, "Field_Name"),
			t.cell(row, "Extraction_Formula"),
		)
		if err != nil {
			loc.Column = "Extraction_Method"
			a.errs.Add(errors.ConfigLoadError(loc, err.Error(), nil))
			return
		}
		rule.ID = t.cell(row, "Rule_ID")
		rule.System = system
		rule.Description = t.cell(row, "Description")
		rule.ExampleInput = t.cell(row, "Example_Input")
		rule.ExampleOutput = t.cell(row, "Example_Output")
		rule.Active = active
		a.addClientExtraction(rule, loc)
	})
}

func (a *assembler) readMultimatch(t *sheetTable) {
	t.each(func(row []string, loc *errors.RuleContext) {
		active, ok := a.active(t, row, loc)
		if !ok {
			return
		}
		a.addMultimatch(&models.MultimatchRule{
			ID:            t.cell(row, "Rule_ID"),
			SourcePattern: t.cell(row, "ElapseIT_Project"),
			TargetPattern: t.cell(row, "Vision_Project"),
			Description:   t.cell(row, "Description"),
			Active:        active,
		}, loc)
	})
}

// newExtractionRule normalizes the method label and formula of an extraction
// row. A direct-field rule with no formula uses its field name. The sheet
// label "Split by pipe delimiter" becomes a split expression over the field
// when the formula cell holds no expression of its own.
func newExtractionRule(methodLabel, field, formula string) (*models.ClientExtractionRule, error) {
	method, err := models.ParseExtractionMethod(methodLabel)
	if err != nil {
		return nil, err
	}

	switch method {
	case models.MethodDirectField:
		if formula == "" {
			formula = field
		}
	case models.MethodFormulaDerived:
		if strings.EqualFold(strings.TrimSpace(methodLabel), "split by pipe delimiter") && !strings.Contains(formula, ":") {
			formula = fmt.Sprintf("split:%s:%s:0", field, models.PatternDelimiter)
		}
	}

	return &models.ClientExtractionRule{
		FieldName: field,
		Method:    method,
		Formula:   formula,
	}, nil
}
