package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"snowflake-mask-report/pkg/types"
)

// LoadTables reads the newline-delimited table list, skipping blank lines
func LoadTables(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.Errorf(types.KindSetup, "load tables", "table list not found: %s", path)
		}
		return nil, types.NewError(types.KindSetup, "load tables", err)
	}
	defer f.Close()

	var tables []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if t := strings.TrimSpace(scanner.Text()); t != "" {
			tables = append(tables, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, types.NewError(types.KindSetup, "load tables", fmt.Errorf("failed to read %s: %w", path, err))
	}
	if len(tables) == 0 {
		return nil, types.Errorf(types.KindSetup, "load tables", "no tables found in %s", path)
	}
	return tables, nil
}
