// Package mockdata writes synthetic customer tables as CSV files readable by
// the csv warehouse source, for dry runs without a warehouse.
package mockdata

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Columns of a generated table, in file order
var Columns = []string{"ID", "CUSTOMER_KEY", "FULL_NAME", "DOB", "SSN", "EMAIL", "BALANCE"}

var firstNames = []string{
	"JAMES", "MARY", "JOHN", "PATRICIA", "ROBERT", "JENNIFER", "MICHAEL", "LINDA",
	"WILLIAM", "BARBARA", "DAVID", "ELIZABETH", "RICHARD", "SUSAN", "JOSEPH", "JESSICA",
	"THOMAS", "SARAH", "CHARLES", "KAREN", "CHRISTOPHER", "NANCY", "DANIEL", "LISA",
}

var lastNames = []string{
	"SMITH", "JOHNSON", "WILLIAMS", "BROWN", "JONES", "GARCIA", "MILLER", "DAVIS",
	"RODRIGUEZ", "MARTINEZ", "HERNANDEZ", "LOPEZ", "GONZALEZ", "WILSON", "ANDERSON", "THOMAS",
	"TAYLOR", "MOORE", "JACKSON", "MARTIN", "LEE", "PEREZ", "THOMPSON", "WHITE",
}

// Options control the generated table
type Options struct {
	Rows int
	// NullRate is the probability that an optional cell (everything but ID)
	// is left empty, which the csv source reads as NULL.
	NullRate float64
	Seed     int64
}

// Generator produces deterministic rows for a seed
type Generator struct {
	opts Options
	rnd  *rand.Rand
}

// New creates a generator
func New(opts Options) *Generator {
	return &Generator{opts: opts, rnd: rand.New(rand.NewSource(opts.Seed))}
}

// Row generates record i
func (g *Generator) Row(i int) []string {
	first := firstNames[g.rnd.Intn(len(firstNames))]
	last := lastNames[g.rnd.Intn(len(lastNames))]

	key, err := uuid.NewRandomFromReader(g.rnd)
	if err != nil {
		key = uuid.Nil
	}

	area := g.rnd.Intn(899) + 1
	if area == 666 {
		area = 667
	}
	year := 1940 + g.rnd.Intn(70)

	row := []string{
		strconv.Itoa(i + 1),
		key.String(),
		first + " " + last,
		fmt.Sprintf("%04d-%02d-%02d", year, g.rnd.Intn(12)+1, g.rnd.Intn(28)+1),
		fmt.Sprintf("%03d-%02d-%04d", area, g.rnd.Intn(99)+1, g.rnd.Intn(9999)+1),
		fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), strings.ToLower(last)),
		strconv.FormatFloat(float64(g.rnd.Intn(1000000))/100, 'f', 2, 64),
	}
	for c := 1; c < len(row); c++ {
		if g.opts.NullRate > 0 && g.rnd.Float64() < g.opts.NullRate {
			row[c] = ""
		}
	}
	return row
}

// WriteTable writes <dir>/<table>.csv and returns its path
func WriteTable(dir, table string, opts Options) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name is required")
	}
	if opts.Rows < 0 {
		return "", fmt.Errorf("invalid number of rows: %d", opts.Rows)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating data directory: %w", err)
	}

	path := filepath.Join(dir, table+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return "", fmt.Errorf("error writing header: %w", err)
	}

	g := New(opts)
	for i := 0; i < opts.Rows; i++ {
		if err := w.Write(g.Row(i)); err != nil {
			return "", fmt.Errorf("error writing row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("error flushing %s: %w", path, err)
	}
	return path, f.Close()
}

// FormatNumber formats an integer with comma separators
func FormatNumber(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if len(s) <= 3 {
		return s
	}

	var result []byte
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(digit))
	}
	return string(result)
}
