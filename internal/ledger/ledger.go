// Package ledger keeps the append-only file of pending tracking ids for the
// table being processed.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ledger is a flat file holding one tracking id per line. Ids are never
// removed individually; the whole file is reset between tables.
type Ledger struct {
	path string
}

// Open returns a ledger backed by path. The file is created lazily.
func Open(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path
func (l *Ledger) Path() string {
	return l.path
}

// Append records a tracking id
func (l *Ledger) Append(trackingID string) error {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return fmt.Errorf("refusing to record an empty tracking id")
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := fmt.Fprintln(f, trackingID); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	return f.Close()
}

// IDs returns the recorded ids in file order, skipping blank lines.
// A missing file holds no ids.
func (l *Ledger) IDs() ([]string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return ids, nil
}

// Reset deletes the ledger file
func (l *Ledger) Reset() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ledger: %w", err)
	}
	return nil
}
