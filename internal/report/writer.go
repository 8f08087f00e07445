// Package report merges masked results into one xlsx workbook per table.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"snowflake-mask-report/pkg/types"
)

const (
	// SheetName is the only sheet written to a report workbook
	SheetName = "Report"

	// HeaderRow holds column names; the row below it stays blank.
	HeaderRow = 1

	// FirstDataRow is the sheet row of absolute export row 0. Row R lands
	// on sheet row R+3, leaving row 2 blank under the headers. The older
	// Python exporter wrote row R to sheet row R+2 (no blank row); reports
	// produced by both are offset by one row.
	FirstDataRow = 3

	defaultSheet = "Sheet1"
)

// Writer persists masked results under outputDir/<TABLE>.xlsx
type Writer struct {
	outputDir string
	log       logrus.FieldLogger
}

// NewWriter creates a report writer rooted at outputDir
func NewWriter(outputDir string, log logrus.FieldLogger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{outputDir: outputDir, log: log}
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.outputDir
}

// Path returns the workbook path for table
func (w *Writer) Path(table string) string {
	return filepath.Join(w.outputDir, table+".xlsx")
}

// Remove deletes the workbook of table, if any
func (w *Writer) Remove(table string) error {
	return RemoveFile(w.Path(table))
}

// RemoveFile deletes path, ignoring a missing file
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// CellName maps an absolute export row and column position to a sheet cell
func CellName(row, columnPosition int) (string, error) {
	return excelize.CoordinatesToCellName(columnPosition+1, row+FirstDataRow)
}

// Merge writes results into the table's workbook. Existing headers are never
// overwritten, results without a masked value leave their cell untouched, and
// the workbook is saved in full on every call.
func (w *Writer) Merge(table string, results []types.MaskedResult) error {
	if table == "" {
		return types.Errorf(types.KindReport, "merge report", "table name is required")
	}

	path := w.Path(table)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.NewError(types.KindReport, "merge report", fmt.Errorf("failed to create output directory: %w", err))
	}

	f, err := openWorkbook(path)
	if err != nil {
		return types.NewError(types.KindReport, "merge report", err)
	}
	defer f.Close()

	valid := make([]types.MaskedResult, 0, len(results))
	for _, r := range results {
		if r.Attribute.Row >= 0 && r.Attribute.ColumnPosition >= 0 {
			valid = append(valid, r)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Attribute.Row != valid[j].Attribute.Row {
			return valid[i].Attribute.Row < valid[j].Attribute.Row
		}
		return valid[i].Attribute.ColumnPosition < valid[j].Attribute.ColumnPosition
	})

	if len(valid) > 0 {
		if err := writeHeaders(f, valid); err != nil {
			return types.NewError(types.KindReport, "merge report", err)
		}

		written := 0
		for _, r := range valid {
			if r.MaskedValue == nil {
				continue
			}
			cell, err := CellName(r.Attribute.Row, r.Attribute.ColumnPosition)
			if err != nil {
				return types.NewError(types.KindReport, "merge report", err)
			}
			if err := f.SetCellValue(SheetName, cell, *r.MaskedValue); err != nil {
				return types.NewError(types.KindReport, "merge report", fmt.Errorf("failed to write %s: %w", cell, err))
			}
			written++
		}
		w.log.WithFields(logrus.Fields{"table": table, "cells": written}).Debug("Merged masked values")
	}

	if err := f.SaveAs(path); err != nil {
		return types.NewError(types.KindReport, "merge report", fmt.Errorf("failed to save %s: %w", path, err))
	}
	w.log.WithField("table", table).Infof("Saved data for table %s", table)
	return nil
}

// openWorkbook loads path or starts a new workbook, making sure the report
// sheet exists and is the only default sheet
func openWorkbook(path string) (*excelize.File, error) {
	var f *excelize.File
	if _, err := os.Stat(path); err == nil {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
	} else {
		f = excelize.NewFile()
	}

	idx, err := f.GetSheetIndex(SheetName)
	if err != nil {
		f.Close()
		return nil, err
	}
	if idx == -1 {
		if idx, err = f.NewSheet(SheetName); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet: %w", err)
		}
	}
	f.SetActiveSheet(idx)

	if len(f.GetSheetList()) > 1 {
		if i, _ := f.GetSheetIndex(defaultSheet); i != -1 {
			if err := f.DeleteSheet(defaultSheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to drop default sheet: %w", err)
			}
		}
	}
	return f, nil
}

// writeHeaders extends row 1 with the column names of results, first write wins
func writeHeaders(f *excelize.File, results []types.MaskedResult) error {
	existing, err := headers(f)
	if err != nil {
		return err
	}

	maxCol := 0
	for _, r := range results {
		if r.Attribute.ColumnPosition > maxCol {
			maxCol = r.Attribute.ColumnPosition
		}
	}
	for pos := range existing {
		if pos > maxCol {
			maxCol = pos
		}
	}

	names := make([]string, maxCol+1)
	for pos, name := range existing {
		names[pos] = name
	}
	for _, r := range results {
		pos := r.Attribute.ColumnPosition
		if names[pos] != "" {
			continue
		}
		if r.Attribute.Column != "" {
			names[pos] = r.Attribute.Column
		} else {
			names[pos] = fmt.Sprintf("Column_%d", pos)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for pos, name := range names {
		if name == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(pos+1, HeaderRow)
		if err != nil {
			return err
		}
		if _, ok := existing[pos]; !ok {
			if err := f.SetCellValue(SheetName, cell, name); err != nil {
				return fmt.Errorf("failed to write header %s: %w", cell, err)
			}
		}
		if err := f.SetCellStyle(SheetName, cell, cell, bold); err != nil {
			return fmt.Errorf("failed to style header %s: %w", cell, err)
		}
	}
	return nil
}

// headers reads the populated header cells keyed by column position
func headers(f *excelize.File) (map[int]string, error) {
	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	out := make(map[int]string)
	if len(rows) == 0 {
		return out, nil
	}
	for pos, name := range rows[HeaderRow-1] {
		if name != "" {
			out[pos] = name
		}
	}
	return out, nil
}

// Load reads the workbook of table back as header names and a sparse map of
// data cells keyed by (row, column position). Used for inspection and tests.
func (w *Writer) Load(table string) ([]string, map[[2]int]string, error) {
	f, err := excelize.OpenFile(w.Path(table))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, nil, err
	}

	var header []string
	cells := make(map[[2]int]string)
	for i, row := range rows {
		sheetRow := i + 1
		if sheetRow == HeaderRow {
			header = append(header, row...)
			continue
		}
		if sheetRow < FirstDataRow {
			continue
		}
		for pos, v := range row {
			if v != "" {
				cells[[2]int{sheetRow - FirstDataRow, pos}] = v
			}
		}
	}
	return header, cells, nil
}
