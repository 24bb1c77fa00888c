package mapping

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// SheetClientMapper is the sheet read from a client mapping workbook. The
// first sheet is used when it is absent.
const SheetClientMapper = "Mapper"

var clientMapColumns = []string{"ElapseIT", "Vision", "Override"}

// LoadClientMap reads the ElapseIT to Vision client translation table from an
// .xlsx or .csv file. A non-empty Override wins over Vision; rows whose
// target is empty, "0" or "nan" are left unmapped.
func LoadClientMap(ctx context.Context, path string) (models.ClientMap, error) {
	var (
		header []string
		rows   [][]string
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		header, rows, err = readMapperWorkbook(path)
	case ".csv":
		header, rows, err = readMapperCSV(path)
	default:
		return nil, errors.ConfigLoadError(&errors.RuleContext{Source: path},
			"unsupported client map, expected .xlsx or .csv", nil)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"elapseit", "vision"} {
		if _, ok := idx[col]; !ok {
			return nil, errors.MissingColumnsError(path, SheetClientMapper, clientMapColumns[:2], header)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	m := make(models.ClientMap)
	for _, row := range rows {
		source := cell(row, "elapseit")
		if source == "" {
			continue
		}
		if override := cell(row, "override"); usable(override) {
			m[source] = override
		} else if vision := cell(row, "vision"); usable(vision) && vision != "0" {
			m[source] = vision
		}
	}
	return m, nil
}

func usable(v string) bool {
	return v != "" && !strings.EqualFold(v, "nan")
}

func readMapperWorkbook(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, errors.ConfigLoadError(&errors.RuleContext{Source: path}, "cannot open client map",
			errors.FileError(errors.CodeFileNotFound, path, err))
	}
	defer f.Close()

	sheet := SheetClientMapper
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, errors.ConfigLoadError(&errors.RuleContext{Source: path, Sheet: sheet}, "cannot read sheet", err)
	}
	if len(rows) == 0 {
		return nil, nil, errors.MissingColumnsError(path, sheet, clientMapColumns[:2], nil)
	}
	return rows[0], rows[1:], nil
}

func readMapperCSV(path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.ConfigLoadError(&errors.RuleContext{Source: path}, "cannot open client map",
			errors.FileError(errors.CodeFileNotFound, path, err))
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, errors.MissingColumnsError(path, SheetClientMapper, clientMapColumns[:2], nil)
	}
	if err != nil {
		return nil, nil, errors.ConfigLoadError(&errors.RuleContext{Source: path}, "cannot read header", err)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, errors.ConfigLoadError(&errors.RuleContext{Source: path}, "malformed client map", err)
	}
	return header, rows, nil
}
