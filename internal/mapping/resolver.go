// Package mapping loads the per-table column masking rules.
package mapping

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"snowflake-mask-report/pkg/types"
)

// fileRule is a column rule as written in the configuration file
type fileRule struct {
	Format    *string `json:"format"`
	TokenName *string `json:"token_name"`
}

// Resolver resolves table names to column mappings from a JSON file of the form
//
//	{"CUSTOMERS": {"0": {"format": "Person Name", "token_name": "Text Token"}}}
//
// The file is read once and reused for every table of the run.
type Resolver struct {
	path string
	log  logrus.FieldLogger

	once   sync.Once
	tables map[string]types.Mapping // keyed by upper-cased table name
	err    error
}

// NewResolver creates a resolver over the configuration file at path
func NewResolver(path string, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{path: path, log: log}
}

// Path returns the configuration file path
func (r *Resolver) Path() string {
	return r.path
}

// Resolve returns the mapping for table. A missing file or malformed JSON is a
// config error; an empty file or an unconfigured table yields an empty mapping.
func (r *Resolver) Resolve(table string) (types.Mapping, error) {
	r.once.Do(r.load)
	if r.err != nil {
		return nil, r.err
	}

	key := strings.ToUpper(strings.TrimSpace(table))
	m, ok := r.tables[key]
	if !ok {
		r.log.WithField("table", table).Infof("No mask configuration found for '%s'. Proceeding with auto-detection", table)
		return types.Mapping{}, nil
	}

	out := make(types.Mapping, len(m))
	for pos, rule := range m {
		out[pos] = rule
	}
	return out, nil
}

func (r *Resolver) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.err = types.Errorf(types.KindConfig, "load mapping", "mask configuration file not found: %s", r.path)
			return
		}
		r.err = types.NewError(types.KindConfig, "load mapping", fmt.Errorf("failed to read %s: %w", r.path, err))
		return
	}

	r.tables, r.err = Parse(data)
}

// Parse decodes mapping configuration content. Blank content is valid and
// configures no tables.
func Parse(data []byte) (map[string]types.Mapping, error) {
	tables := make(map[string]types.Mapping)
	if len(bytes.TrimSpace(data)) == 0 {
		return tables, nil
	}

	var raw map[string]map[string]fileRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.NewError(types.KindConfig, "parse mapping", fmt.Errorf("invalid JSON in mask configuration: %w", err))
	}

	for table, columns := range raw {
		m := make(types.Mapping, len(columns))
		for key, rule := range columns {
			pos, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, types.Errorf(types.KindConfig, "parse mapping", "table %s: column key %q is not an integer position", table, key)
			}
			m[pos] = types.ColumnRule{
				Format:    nonEmpty(rule.Format),
				TokenName: nonEmpty(rule.TokenName),
			}
		}
		tables[strings.ToUpper(strings.TrimSpace(table))] = m
	}
	return tables, nil
}

// Validate checks mapping positions against the discovered column count
func Validate(m types.Mapping, columnCount int) error {
	if len(m) == 0 || columnCount == 0 {
		return nil
	}

	var outOfRange []int
	for pos := range m {
		if pos < 0 || pos > columnCount-1 {
			outOfRange = append(outOfRange, pos)
		}
	}
	if len(outOfRange) == 0 {
		return nil
	}

	sort.Ints(outOfRange)
	return types.Errorf(types.KindValidation, "validate mapping",
		"table has %d columns, but config specified out-of-range indices: %v", columnCount, outOfRange)
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
