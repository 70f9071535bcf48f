// Package export renders the registration journal as an XLSX workbook.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"outboxapi/internal/model"
)

// SheetName is the name of the only sheet in the workbook.
const SheetName = "Журнал исходящих"

// ContentType of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var columns = []struct {
	title string
	width float64
}{
	{"Порядковый №", 8},
	{"Исходящий номер", 15},
	{"Дата", 12},
	{"Кому", 40},
	{"Исполнитель", 25},
	{"Путь к файлам", 50},
}

func thinBorders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}

// Journal builds the workbook for entries in the given order.
func Journal(entries []model.JournalEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#4472C4"}},
		Border:    thinBorders(),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{
		Border:    thinBorders(),
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("body style: %w", err)
	}

	header := make([]any, 0, len(columns))
	for i, c := range columns {
		header = append(header, c.title)
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, c.width); err != nil {
			return nil, fmt.Errorf("column width: %w", err)
		}
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("header row: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, e := range entries {
		row := []any{
			e.SequenceNumber,
			e.FormattedNumber,
			e.IssueDate.Display(),
			e.Recipient,
			e.Executor,
			e.FolderPath,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if len(entries) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(columns), len(entries)+1)
		if err := f.SetCellStyle(SheetName, "A2", end, bodyStyle); err != nil {
			return nil, fmt.Errorf("body style: %w", err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName is journal.xlsx narrowed by the filter: journal_2026.xlsx,
// journal_2026_03.xlsx.
func FileName(year, month int) string {
	name := "journal"
	if year > 0 {
		name += fmt.Sprintf("_%04d", year)
	}
	if month > 0 {
		name += fmt.Sprintf("_%02d", month)
	}
	return name + ".xlsx"
}
