// Package pipeline drives each table through export, masking submission and
// ledger resolution into its report workbook.
//
// Tables are processed one after another. A failure inside a table is
// recorded on its TableResult and the run moves on; setup and mapping
// configuration errors, and context cancellation, stop the run.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"snowflake-mask-report/internal/ledger"
	"snowflake-mask-report/internal/mapping"
	"snowflake-mask-report/internal/metrics"
	"snowflake-mask-report/internal/payload"
	"snowflake-mask-report/internal/report"
	"snowflake-mask-report/pkg/types"
)

// Cleanup modes, see Config.CleanupMode
const (
	CleanupShared = "shared"
	CleanupTable  = "table"
	CleanupBoth   = "both"
)

// SharedReportName is the legacy single-report file removed before each
// table in shared cleanup mode. The report writer never produces it.
const SharedReportName = "mask_report.xlsx"

// Config holds the run parameters threaded through the driver
type Config struct {
	NumRows           int
	ChunkSize         int
	MaxColumnsPerCall int

	// CleanupMode selects what INIT removes besides the ledger: the shared
	// report path, the table's own workbook, or both.
	CleanupMode string
	// SharedReportPath defaults to <output dir>/mask_report.xlsx
	SharedReportPath string
	// CleanOutput removes the whole output directory when the run starts
	CleanOutput bool
	// KeepPaths are inputs the output directory must never contain when
	// CleanOutput removes it (credentials, mapping, table list).
	KeepPaths []string
}

// MappingResolver looks up the column mapping of a table
type MappingResolver interface {
	Resolve(table string) (types.Mapping, error)
}

// Awaiter polls a tracking id until its job is terminal
type Awaiter interface {
	Await(ctx context.Context, trackingID string) ([]types.MaskedResult, error)
}

// Publisher ships a finished workbook somewhere
type Publisher interface {
	Publish(ctx context.Context, table, localPath string) (string, error)
}

// Deps are the collaborators of a Driver. Publisher is optional.
type Deps struct {
	Source    types.Source
	Client    types.MaskingClient
	Poller    Awaiter
	Mappings  MappingResolver
	Ledger    *ledger.Ledger
	Report    *report.Writer
	Publisher Publisher
	Logger    logrus.FieldLogger
}

// Driver runs the per-table state machine
type Driver struct {
	cfg  Config
	deps Deps
	log  logrus.FieldLogger
	now  func() time.Time
}

// NewDriver validates cfg and deps and applies defaults
func NewDriver(cfg Config, deps Deps) (*Driver, error) {
	switch {
	case deps.Source == nil:
		return nil, types.Errorf(types.KindSetup, "create driver", "warehouse source is required")
	case deps.Client == nil:
		return nil, types.Errorf(types.KindSetup, "create driver", "masking client is required")
	case deps.Poller == nil:
		return nil, types.Errorf(types.KindSetup, "create driver", "poller is required")
	case deps.Mappings == nil:
		return nil, types.Errorf(types.KindSetup, "create driver", "mapping resolver is required")
	case deps.Ledger == nil:
		return nil, types.Errorf(types.KindSetup, "create driver", "tracking ledger is required")
	case deps.Report == nil:
		return nil, types.Errorf(types.KindSetup, "create driver", "report writer is required")
	}
	if cfg.NumRows <= 0 {
		return nil, types.Errorf(types.KindSetup, "create driver", "invalid number of rows: %d", cfg.NumRows)
	}
	if cfg.ChunkSize <= 0 {
		return nil, types.Errorf(types.KindSetup, "create driver", "invalid table chunk size: %d", cfg.ChunkSize)
	}
	if cfg.MaxColumnsPerCall <= 0 {
		cfg.MaxColumnsPerCall = types.DefaultMaxColumnsPerCall
	}
	switch cfg.CleanupMode {
	case "":
		cfg.CleanupMode = CleanupShared
	case CleanupShared, CleanupTable, CleanupBoth:
	default:
		return nil, types.Errorf(types.KindSetup, "create driver", "unknown cleanup mode %q", cfg.CleanupMode)
	}
	if cfg.SharedReportPath == "" {
		cfg.SharedReportPath = filepath.Join(deps.Report.Dir(), SharedReportName)
	}

	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{cfg: cfg, deps: deps, log: log, now: time.Now}, nil
}

// Run connects the source, processes tables in order and closes the source.
// The returned error is non-nil only when the run was aborted; table
// failures are reported through the summary.
func (d *Driver) Run(ctx context.Context, tables []string) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString(), StartTime: d.now()}
	log := d.log.WithField("run_id", summary.RunID)
	defer func() { summary.EndTime = d.now() }()

	if len(tables) == 0 {
		return summary, types.Errorf(types.KindSetup, "run", "no tables to process")
	}

	if d.cfg.CleanOutput {
		if err := checkRemovable(d.deps.Report.Dir(), d.cfg.KeepPaths); err != nil {
			return summary, err
		}
		if err := os.RemoveAll(d.deps.Report.Dir()); err != nil {
			return summary, types.NewError(types.KindSetup, "clean output", err)
		}
	}

	if err := d.deps.Source.Connect(ctx); err != nil {
		if types.KindOf(err) == types.KindUnknown {
			err = types.NewError(types.KindSetup, "connect warehouse", err)
		}
		return summary, err
	}
	defer func() {
		if err := d.deps.Source.Close(); err != nil {
			log.WithError(err).Warn("Failed to close warehouse connection")
		}
	}()

	log.Infof("Masking started: max %d rows fetched, %d row per API call, %d columns per call",
		d.cfg.NumRows, d.cfg.ChunkSize, d.cfg.MaxColumnsPerCall)

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := d.ProcessTable(ctx, table, log)
		summary.Tables = append(summary.Tables, result)
		metrics.RecordTable(string(result.State))

		if result.Err == nil {
			continue
		}
		if types.KindOf(result.Err).AbortsRun() || ctx.Err() != nil {
			log.WithError(result.Err).Error("Aborting run")
			return summary, result.Err
		}
		log.WithField("table", table).Warnf("Masking failed for table %s. Proceeding with next table", table)
	}

	log.Info("All table masking operations completed.")
	return summary, nil
}

// ProcessTable runs one table through INIT, PAGINATING, SUBMITTING and
// RESOLVING. The result is DONE or FAILED with Err set.
func (d *Driver) ProcessTable(ctx context.Context, table string, log logrus.FieldLogger) *TableResult {
	if log == nil {
		log = d.log
	}
	log = log.WithField("table", table)

	res := newTableResult(table, d.now())
	err := d.processTable(ctx, table, res, log)
	res.EndTime = d.now()

	if err != nil {
		res.FailedIn = res.State
		res.State = StateFailed
		res.Err = types.WithTable(err, table)
		log.WithFields(logrus.Fields{
			"state": res.FailedIn,
			"kind":  types.KindOf(err).String(),
		}).WithError(err).Error("Table failed")
		return res
	}

	res.State = StateDone
	log.WithFields(logrus.Fields{
		"rows":         res.Rows,
		"submissions":  res.Submissions,
		"masked_cells": res.MaskedCells,
	}).Info("Table completed")
	return res
}

func (d *Driver) processTable(ctx context.Context, table string, res *TableResult, log logrus.FieldLogger) error {
	if err := d.initTable(table); err != nil {
		return err
	}

	var (
		m        types.Mapping
		resolved bool
	)
	res.State = StatePaginating
	for offset := 0; offset < d.cfg.NumRows; offset += d.cfg.ChunkSize {
		limit := d.cfg.ChunkSize
		if remaining := d.cfg.NumRows - offset; remaining < limit {
			limit = remaining
		}

		start := d.now()
		batch, err := d.deps.Source.Fetch(ctx, table, limit, offset)
		res.AddTime(TimeFetch, d.now().Sub(start))
		metrics.RecordStep(TimeFetch, err, d.now().Sub(start))
		if err != nil {
			return classify(ctx, err, types.KindWarehouse, "fetch")
		}
		if len(batch.Rows) == 0 {
			break
		}
		res.Rows += len(batch.Rows)
		metrics.RecordCells("exported", countCells(batch.Rows))

		if !resolved {
			if m, err = d.deps.Mappings.Resolve(table); err != nil {
				return classify(ctx, err, types.KindConfig, "resolve mapping")
			}
			resolved = true
		}

		res.State = StateSubmitting
		if err := d.submitChunk(ctx, table, batch, offset, m, res, log); err != nil {
			return err
		}
		log.Infof("Mask API call completed for table '%s' at row offset %d", table, offset+1)
		res.State = StatePaginating
	}

	if res.Rows == 0 {
		log.Info("No rows exported")
		return nil
	}

	res.State = StateResolving
	if err := d.resolve(ctx, table, res, log); err != nil {
		return err
	}
	res.Report = d.deps.Report.Path(table)

	if d.deps.Publisher != nil && res.Resolved > 0 {
		location, err := d.deps.Publisher.Publish(ctx, table, res.Report)
		if err != nil {
			return classify(ctx, err, types.KindPublish, "publish report")
		}
		res.Published = location
	}
	return nil
}

// initTable clears per-table state left by the previous table
func (d *Driver) initTable(table string) error {
	if err := d.deps.Ledger.Reset(); err != nil {
		return types.NewError(types.KindReport, "reset ledger", err)
	}

	if d.cfg.CleanupMode == CleanupShared || d.cfg.CleanupMode == CleanupBoth {
		if err := report.RemoveFile(d.cfg.SharedReportPath); err != nil {
			return types.NewError(types.KindReport, "cleanup", err)
		}
	}
	if d.cfg.CleanupMode == CleanupTable || d.cfg.CleanupMode == CleanupBoth {
		if err := d.deps.Report.Remove(table); err != nil {
			return types.NewError(types.KindReport, "cleanup", err)
		}
	}
	return nil
}

// submitChunk submits one payload per column range of batch
func (d *Driver) submitChunk(ctx context.Context, table string, batch types.RowBatch, offset int, m types.Mapping, res *TableResult, log logrus.FieldLogger) error {
	if offset == 0 {
		if err := mapping.Validate(m, len(batch.Columns)); err != nil {
			return err
		}
	}

	ranges := payload.ColumnRanges(len(batch.Columns), d.cfg.MaxColumnsPerCall)
	for _, cols := range ranges {
		if len(ranges) > 1 {
			log.Infof("Masking started for columns %d to %d for table %s at offset %d", cols.Start+1, cols.End, table, offset)
		}

		entries := payload.Build(batch.Columns, batch.Rows, offset, m, cols)
		if len(entries) == 0 {
			continue
		}

		start := d.now()
		id, err := d.deps.Client.Submit(ctx, entries)
		res.AddTime(TimeSubmit, d.now().Sub(start))
		metrics.RecordStep(TimeSubmit, err, d.now().Sub(start))
		if err != nil {
			return classify(ctx, err, types.KindSubmission, "submit")
		}

		if err := d.deps.Ledger.Append(id); err != nil {
			return types.NewError(types.KindSubmission, "record tracking id", err)
		}
		res.Submissions++
		metrics.RecordSubmission()
		metrics.RecordCells("submitted", len(entries))

		log.WithFields(logrus.Fields{
			"tracking_id": id,
			"entries":     len(entries),
			"offset":      offset,
		}).Debug("Submitted masking job")
	}
	return nil
}

// resolve polls every ledger id in file order and merges its results. The
// first failing id stops resolution; earlier merges stay written.
func (d *Driver) resolve(ctx context.Context, table string, res *TableResult, log logrus.FieldLogger) error {
	ids, err := d.deps.Ledger.IDs()
	if err != nil {
		return types.NewError(types.KindPoll, "read ledger", err)
	}

	for _, id := range ids {
		start := d.now()
		results, err := d.deps.Poller.Await(ctx, id)
		res.AddTime(TimePoll, d.now().Sub(start))
		if err == nil && len(results) == 0 {
			err = types.Errorf(types.KindPoll, "poll", "no masked data returned for tracking ID %s", id)
		}
		metrics.RecordStep(TimePoll, err, d.now().Sub(start))
		if err != nil {
			return classify(ctx, err, types.KindPoll, "poll")
		}

		start = d.now()
		err = d.deps.Report.Merge(table, results)
		res.AddTime(TimeMerge, d.now().Sub(start))
		metrics.RecordStep(TimeMerge, err, d.now().Sub(start))
		if err != nil {
			return classify(ctx, err, types.KindReport, "merge report")
		}

		cells := 0
		for _, r := range results {
			if r.MaskedValue != nil {
				cells++
			}
		}
		res.Resolved++
		res.MaskedCells += cells
		metrics.RecordCells("masked", cells)
		log.WithField("tracking_id", id).Infof("Masked data stored in excel for %s", table)
	}
	return nil
}

// classify gives untyped errors the kind of the step they came from.
// Context errors stay untyped only when the run's own ctx is done; a
// deadline hit by a single request is a failure of that step.
func classify(ctx context.Context, err error, kind types.Kind, op string) error {
	if types.KindOf(err) != types.KindUnknown {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	return types.NewError(kind, op, err)
}

func countCells(rows [][]interface{}) int {
	n := 0
	for _, row := range rows {
		for _, v := range row {
			if v != nil {
				n++
			}
		}
	}
	return n
}

// checkRemovable refuses to clean a directory that is the filesystem root,
// the working directory or one of its parents, or that holds a kept input.
func checkRemovable(dir string, keep []string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return types.NewError(types.KindSetup, "clean output", err)
	}
	if abs == filepath.Dir(abs) {
		return types.Errorf(types.KindSetup, "clean output", "refusing to remove filesystem root %s", abs)
	}

	if cwd, err := os.Getwd(); err == nil {
		keep = append([]string{cwd}, keep...)
	}
	for _, p := range keep {
		if p == "" {
			continue
		}
		kept, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if within(abs, kept) {
			return types.Errorf(types.KindSetup, "clean output", "refusing to remove %s: it contains %s", abs, kept)
		}
	}
	return nil
}

// within reports whether path is dir or lies below it
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
