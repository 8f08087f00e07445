// Package payload turns warehouse row batches into masking service payloads.
package payload

import (
	"fmt"
	"strconv"
	"time"

	"snowflake-mask-report/pkg/types"
)

// All returns the range covering every column
func All(columnCount int) types.ColumnRange {
	return types.ColumnRange{Start: 0, End: columnCount}
}

// Build converts rows into mask entries. Row numbers are absolute:
// the batch-local index plus startRow. Cells holding nil are skipped.
// An empty slice means there is nothing to submit.
func Build(columns []string, rows [][]interface{}, startRow int, m types.Mapping, cols types.ColumnRange) []types.MaskEntry {
	if len(columns) == 0 || len(rows) == 0 {
		return []types.MaskEntry{}
	}

	start := cols.Start
	if start < 0 {
		start = 0
	}

	width := cols.Width()
	if width < 0 {
		width = 0
	}
	entries := make([]types.MaskEntry, 0, len(rows)*width)
	for i, row := range rows {
		end := cols.End
		if end > len(row) {
			end = len(row)
		}

		for position := start; position < end; position++ {
			value := row[position]
			if value == nil {
				continue
			}

			entry := types.MaskEntry{
				Value: Stringify(value),
				Attribute: types.Attribute{
					Row:            startRow + i,
					Column:         columnName(columns, position),
					ColumnPosition: position,
				},
			}

			rule := m.Rule(position)
			if rule.Format != nil {
				entry.Format = *rule.Format
			}
			if rule.TokenName != nil {
				entry.TokenName = *rule.TokenName
			}

			entries = append(entries, entry)
		}
	}

	return entries
}

// ColumnRanges splits columnCount columns into contiguous ranges of at most
// maxPerCall columns
func ColumnRanges(columnCount, maxPerCall int) []types.ColumnRange {
	if maxPerCall <= 0 {
		maxPerCall = types.DefaultMaxColumnsPerCall
	}

	var ranges []types.ColumnRange
	for i := 0; i < columnCount; i += maxPerCall {
		end := i + maxPerCall
		if end > columnCount {
			end = columnCount
		}
		ranges = append(ranges, types.ColumnRange{Start: i, End: end})
	}
	return ranges
}

func columnName(columns []string, position int) string {
	if position < len(columns) {
		return columns[position]
	}
	return fmt.Sprintf("column_%d", position)
}

// Stringify renders a warehouse value as the text sent for masking
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
