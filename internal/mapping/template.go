package mapping

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"timesheet-reconciliation-service/pkg/errors"
)

// Sheet is the name and rows (header first) of one workbook sheet
type Sheet struct {
	Name string
	Rows [][]string
}

// DefaultSheets returns the starter rule workbook: person and client form
// the join key on both sides, clients are taken directly from the client
// columns and three AKBANK projects are broken down in the second pass.
func DefaultSheets() []Sheet {
	return []Sheet{
		{Name: SheetFieldMappings, Rows: [][]string{
			{"Field_Mapping_ID", "ElapseIT_Field", "Vision_Field", "Description", "Is_Active"},
			{"FM001", "Person", "employee", "Person/Employee field mapping", "Yes"},
			{"FM002", "Project", "project", "Project field mapping", "Yes"},
			{"FM003", "Client", "client", "Client field mapping", "Yes"},
		}},
		{Name: SheetCompositeKeys, Rows: [][]string{
			{"Composite_Key_ID", "System", "Composite_Key_Formula", "Description", "Is_Active"},
			{"CK001", "ElapseIT", "Person.Client", "ElapseIT composite key: Person + Client", "Yes"},
			{"CK002", "Vision", "employee.client", "Vision composite key: employee + client", "Yes"},
		}},
		{Name: SheetClientExtraction, Rows: [][]string{
			{"Rule_ID", "System", "Field_Name", "Extraction_Method", "Extraction_Formula", "Description", "Example_Input", "Example_Output", "Is_Active"},
			{"CE001", "ElapseIT", "Client", "Direct field", "Client", "Use Client field directly from ElapseIT data", "AKBANK", "AKBANK", "Yes"},
			{"CE002", "Vision", "client", "Direct field", "client", "Use client field directly from Vision data", "AKB", "AKB", "Yes"},
		}},
		{Name: SheetMultimatcher, Rows: [][]string{
			{"Rule_ID", "ElapseIT_Project", "Vision_Project", "Description", "Is_Active"},
			{"MM001", "AKBANK|CVA", "AKB|CHANGE|MX|FIX|CVA", "Map AKBANK|CVA from ElapseIT to AKB|CHANGE|MX|FIX|CVA in Vision", "Yes"},
			{"MM002", "AKBANK|MINI", "AKB|RUN|MX|FIX|F2B", "Map AKBANK|MINI from ElapseIT to AKB|RUN|MX|FIX|F2B in Vision", "Yes"},
			{"MM003", "AKBANK|SUPP", "AKB|SUPP|MX|FIX|F2B", "Map AKBANK|SUPP from ElapseIT to AKB|SUPP|MX|FIX|F2B in Vision", "Yes"},
		}},
		{Name: SheetInstructions, Rows: [][]string{
			{"Section", "Instruction"},
			{"Field Mappings", "Map each ElapseIT field to its Vision field"},
			{"Composite Keys", "One active formula per system; fields joined with '.' in the order given"},
			{"Client Extraction", "Direct field uses the column as is; Split by pipe delimiter takes the first '|' token"},
			{"Multimatcher", "Second pass: an unmatched ElapseIT project equal to ElapseIT_Project is matched as Vision_Project"},
			{"General Notes", "Set Is_Active to No to switch a rule off without deleting it"},
		}},
	}
}

// WriteWorkbook saves sheets to an .xlsx file at path
func WriteWorkbook(path string, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				return errors.FileError(errors.CodeFilePermission, path, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}

		for r, row := range sheet.Rows {
			cells := make([]interface{}, len(row))
			for c, v := range row {
				cells[c] = v
			}
			axis, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet.Name, axis, &cells); err != nil {
				return errors.FileError(errors.CodeFilePermission, path, fmt.Errorf("sheet %s row %d: %w", sheet.Name, r+1, err))
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
