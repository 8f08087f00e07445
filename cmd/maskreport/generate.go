package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"snowflake-mask-report/internal/mockdata"
)

func newGenerateCmd() *cobra.Command {
	var (
		tables    []string
		rows      int
		nullRate  float64
		seed      int64
		dataDir   string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic CSV tables for dry runs with --source csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tables) == 0 {
				return fmt.Errorf("at least one table is required")
			}
			for _, table := range tables {
				path, err := mockdata.WriteTable(dataDir, table, mockdata.Options{
					Rows:     rows,
					NullRate: nullRate,
					Seed:     seed,
				})
				if err != nil {
					return err
				}
				log.WithField("table", table).Infof("Generated %s rows in %s", mockdata.FormatNumber(rows), path)
			}

			if inputFile == "" {
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(inputFile), 0o755); err != nil {
				return fmt.Errorf("error creating input directory: %w", err)
			}
			if err := os.WriteFile(inputFile, []byte(strings.Join(tables, "\n")+"\n"), 0o644); err != nil {
				return fmt.Errorf("error writing table list: %w", err)
			}
			log.Infof("Wrote table list %s", inputFile)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&tables, "tables", []string{"CUSTOMERS"}, "tables to generate")
	f.IntVar(&rows, "rows", 100, "rows per table")
	f.Float64Var(&nullRate, "null-rate", 0.1, "probability of an empty optional cell")
	f.Int64Var(&seed, "seed", 1, "random seed")
	f.StringVar(&dataDir, "data-dir", "data", "output directory")
	f.StringVar(&inputFile, "input", "", "also write the table list to this file")
	return cmd
}
