package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"freightplan/internal/opt"
)

const (
	SheetAllocations = "Allocations"
	SheetConstraints = "Constraints"
)

// XLSX writes a workbook with an allocation sheet and a constraint sheet.
func XLSX(w io.Writer, p opt.Problem, res opt.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetAllocations); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetConstraints); err != nil {
		return fmt.Errorf("report: create sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("report: style: %w", err)
	}

	alloc := [][]any{{"Driver", "Supplier", "Client", "Quantity", "Unit Cost", "Cost"}}
	for _, a := range res.Allocations {
		alloc = append(alloc, []any{
			driverLabel(p, a.Driver), supplierLabel(p, a.Supply), clientLabel(p, a.Demand),
			a.Quantity, p.Cost[a.Supply][a.Demand], a.Cost,
		})
	}
	summary := []any{"Status", string(res.Status)}
	if res.Objective != nil {
		summary = append(summary, "Total Cost", *res.Objective)
	}
	alloc = append(alloc, nil, summary)
	if err := writeRows(f, SheetAllocations, alloc, headerStyle); err != nil {
		return err
	}

	cons := [][]any{{"Name", "Family", "Sense", "RHS", "Activity", "Dual", "Slack"}}
	for _, c := range res.Constraints {
		cons = append(cons, []any{c.Name, string(c.Family), c.Sense, c.RHS, c.Activity, c.Dual, c.Slack})
	}
	if res.DualNote != "" {
		cons = append(cons, nil, []any{"Note", res.DualNote})
	}
	if err := writeRows(f, SheetConstraints, cons, headerStyle); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for r, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("report: %s row %d: %w", sheet, r+1, err)
		}
	}
	if len(rows) > 0 {
		_ = f.SetRowStyle(sheet, 1, 1, headerStyle)
		last, _ := excelize.ColumnNumberToName(len(rows[0]))
		_ = f.SetColWidth(sheet, "A", last, 16)
	}
	return nil
}
