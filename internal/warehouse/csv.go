package warehouse

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"snowflake-mask-report/pkg/types"
)

// CSVDir implements types.Source over a directory holding one <TABLE>.csv
// per table. The first record is the header; empty cells read as NULL.
type CSVDir struct {
	Dir string
}

// NewCSVDir creates a CSV directory source
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{Dir: dir}
}

// Connect validates the data directory exists
func (c *CSVDir) Connect(context.Context) error {
	info, err := os.Stat(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Errorf(types.KindSetup, "connect warehouse", "data directory not found: %s", c.Dir)
		}
		return types.NewError(types.KindSetup, "connect warehouse", err)
	}
	if !info.IsDir() {
		return types.Errorf(types.KindSetup, "connect warehouse", "not a directory: %s", c.Dir)
	}
	return nil
}

// Close is a no-op for CSV files
func (c *CSVDir) Close() error {
	return nil
}

// tablePath finds <table>.csv, matching the name case-insensitively
func (c *CSVDir) tablePath(table string) (string, error) {
	exact := filepath.Join(c.Dir, table+".csv")
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.EqualFold(name, table+".csv") {
			return filepath.Join(c.Dir, name), nil
		}
	}
	return "", fmt.Errorf("table file not found: %s", exact)
}

// Fetch reads up to limit data records after skipping offset of them
func (c *CSVDir) Fetch(ctx context.Context, table string, limit, offset int) (types.RowBatch, error) {
	if err := ctx.Err(); err != nil {
		return types.RowBatch{}, err
	}

	path, err := c.tablePath(table)
	if err != nil {
		return types.RowBatch{}, types.NewError(types.KindWarehouse, "fetch", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return types.RowBatch{}, types.NewError(types.KindWarehouse, "fetch", fmt.Errorf("failed to open data file: %w", err))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return types.RowBatch{}, nil
	}
	if err != nil {
		return types.RowBatch{}, types.NewError(types.KindWarehouse, "fetch", fmt.Errorf("failed to read headers: %w", err))
	}

	batch := types.RowBatch{Columns: header}
	for index := 0; limit > 0 && len(batch.Rows) < limit; index++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.RowBatch{}, types.NewError(types.KindWarehouse, "fetch", fmt.Errorf("error reading data row: %w", err))
		}
		if index < offset {
			continue
		}

		row := make([]interface{}, len(header))
		for i := range row {
			if i < len(record) && record[i] != "" {
				row[i] = strings.Clone(record[i])
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}
