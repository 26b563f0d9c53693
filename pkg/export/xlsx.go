package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// SheetName is the worksheet holding the relationship rows.
const SheetName = "Relationships"

// TabularHeaders are the spreadsheet column titles, in order.
var TabularHeaders = []string{
	"Dataset", "Dataset Logical Name",
	"Views", "Views Logical Name",
	"Table", "Table Logical Name",
	"Field", "Field Logical Name",
}

func rowCells(r models.TabularRow) []any {
	return []any{
		r.Dataset, r.DatasetLogical,
		strings.Join(r.Views, ViewSeparator), strings.Join(r.ViewsLogical, ViewSeparator),
		r.Table, r.TableLogical,
		r.Field, r.FieldLogical,
	}
}

// EncodeTabularXLSX renders rows as a workbook. The same rows always give
// the same bytes.
func EncodeTabularXLSX(rows []models.TabularRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(TabularHeaders))
	for i, h := range TabularHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(TabularHeaders))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", lastCol, 24); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		cells := rowCells(r)
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return canonicalizeZip(buf.Bytes())
}

// WriteTabularXLSX encodes rows and writes them atomically to path.
func WriteTabularXLSX(path string, rows []models.TabularRow) ([]byte, error) {
	data, err := EncodeTabularXLSX(rows)
	if err != nil {
		return nil, err
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadTabularXLSX reads rows back from a workbook written by
// WriteTabularXLSX. Columns are located by header title.
func ReadTabularXLSX(r io.Reader) ([]models.TabularRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	grid, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", SheetName, err)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", SheetName)
	}

	index := make(map[string]int, len(grid[0]))
	for i, h := range grid[0] {
		index[h] = i
	}
	for _, h := range TabularHeaders {
		if _, ok := index[h]; !ok {
			return nil, fmt.Errorf("sheet %s is missing column %q", SheetName, h)
		}
	}

	get := func(row []string, header string) string {
		if i := index[header]; i < len(row) {
			return row[i]
		}
		return ""
	}
	split := func(s string) []string {
		if s == "" {
			return nil
		}
		return strings.Split(s, ViewSeparator)
	}

	rows := make([]models.TabularRow, 0, len(grid)-1)
	for _, row := range grid[1:] {
		rows = append(rows, models.TabularRow{
			Dataset:        get(row, "Dataset"),
			DatasetLogical: get(row, "Dataset Logical Name"),
			Views:          split(get(row, "Views")),
			ViewsLogical:   split(get(row, "Views Logical Name")),
			Table:          get(row, "Table"),
			TableLogical:   get(row, "Table Logical Name"),
			Field:          get(row, "Field"),
			FieldLogical:   get(row, "Field Logical Name"),
		})
	}
	return rows, nil
}

// ReadTabularXLSXFile is ReadTabularXLSX over file contents.
func ReadTabularXLSXFile(data []byte) ([]models.TabularRow, error) {
	return ReadTabularXLSX(bytes.NewReader(data))
}
