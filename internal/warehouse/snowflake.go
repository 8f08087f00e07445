// Package warehouse provides the row sources the pipeline exports from: a
// Snowflake connection and a directory of CSV files for dry runs.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	sf "github.com/snowflakedb/gosnowflake"

	"snowflake-mask-report/pkg/types"
)

// SnowflakeConfig holds connection settings
type SnowflakeConfig struct {
	Account   string
	User      string
	Password  string
	Warehouse string
	Database  string
	Schema    string
	Role      string
}

// Snowflake implements types.Source over database/sql
type Snowflake struct {
	cfg SnowflakeConfig
	db  *sql.DB
	log logrus.FieldLogger
}

// NewSnowflake creates an unconnected Snowflake source
func NewSnowflake(cfg SnowflakeConfig, log logrus.FieldLogger) *Snowflake {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Snowflake{cfg: cfg, log: log}
}

// DSN builds the driver connection string
func (c SnowflakeConfig) DSN() (string, error) {
	return sf.DSN(&sf.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Database:  c.Database,
		Schema:    c.Schema,
		Role:      c.Role,
	})
}

// Connect establishes connection to Snowflake
func (s *Snowflake) Connect(ctx context.Context) error {
	dsn, err := s.cfg.DSN()
	if err != nil {
		return types.NewError(types.KindSetup, "connect warehouse", fmt.Errorf("invalid Snowflake configuration: %w", err))
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return types.NewError(types.KindSetup, "connect warehouse", fmt.Errorf("failed to open Snowflake connection: %w", err))
	}

	// One table at a time; a single connection is enough
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return types.NewError(types.KindSetup, "connect warehouse", fmt.Errorf("failed to ping Snowflake: %w", err))
	}

	s.db = db
	s.log.WithFields(logrus.Fields{
		"account":   s.cfg.Account,
		"warehouse": s.cfg.Warehouse,
	}).Info("Connected to Snowflake")
	return nil
}

// Close closes the Snowflake connection
func (s *Snowflake) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// identifier accepts plain and dotted object names, optionally double quoted
var identifier = regexp.MustCompile(`^("[^"]+"|[A-Za-z_][A-Za-z0-9_$]*)(\.("[^"]+"|[A-Za-z_][A-Za-z0-9_$]*)){0,2}$`)

// SelectQuery returns the paging query for table
func SelectQuery(table string, limit, offset int) (string, error) {
	if !identifier.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	if limit < 0 || offset < 0 {
		return "", fmt.Errorf("invalid page limit=%d offset=%d", limit, offset)
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", table, limit, offset), nil
}

// Fetch reads one page of table. Row order follows the warehouse's
// natural order; no ORDER BY is applied.
func (s *Snowflake) Fetch(ctx context.Context, table string, limit, offset int) (types.RowBatch, error) {
	if s.db == nil {
		return types.RowBatch{}, types.Errorf(types.KindWarehouse, "fetch", "no active Snowflake connection")
	}

	query, err := SelectQuery(table, limit, offset)
	if err != nil {
		return types.RowBatch{}, types.NewError(types.KindWarehouse, "fetch", err)
	}

	s.log.WithFields(logrus.Fields{"table": table, "limit": limit, "offset": offset}).Debug("Querying Snowflake")

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return types.RowBatch{}, types.NewError(types.KindWarehouse, "fetch", fmt.Errorf("failed to execute query: %w", err))
	}
	defer rows.Close()

	batch, err := scanRows(rows)
	if err != nil {
		return types.RowBatch{}, types.NewError(types.KindWarehouse, "fetch", err)
	}
	return batch, nil
}

// rowScanner is the subset of *sql.Rows used to build a batch
type rowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanRows(rows rowScanner) (types.RowBatch, error) {
	columns, err := rows.Columns()
	if err != nil {
		return types.RowBatch{}, fmt.Errorf("failed to read columns: %w", err)
	}

	batch := types.RowBatch{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return types.RowBatch{}, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		batch.Rows = append(batch.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return types.RowBatch{}, fmt.Errorf("error iterating rows: %w", err)
	}
	return batch, nil
}
