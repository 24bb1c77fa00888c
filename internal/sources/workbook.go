package sources

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

type sliceRows struct {
	rows [][]string
	next int
}

func (s *sliceRows) Next() ([]string, error) {
	if s.next >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.next]
	s.next++
	return row, nil
}

// Line is the 1-based sheet row of the last row returned
func (s *sliceRows) Line() int {
	return s.next
}

// readWorkbook reads the configured sheet, or the first sheet of the workbook
func (er *ExportReader) readWorkbook(ctx context.Context, path string) ([]*models.Record, *ReadStats, error) {
	rows, err := sheetRows(path, er.config.Sheet)
	if err != nil {
		return nil, nil, err
	}
	return er.readRows(ctx, path, &sliceRows{rows: rows})
}

// sheetRows returns every row of sheet. An empty sheet name means the first sheet.
func sheetRows(path, sheet string) ([][]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, classifyOpenError(path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return nil, errors.ParseError(errors.CodeMissingColumn, path, 0, sheet, "", nil).
			WithSuggestion("check the sheet name; available sheets: " + strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return rows, nil
}
