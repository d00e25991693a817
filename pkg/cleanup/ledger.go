package cleanup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fulmenhq/sitekeeper/pkg/safeio"
)

// Merge records a duplicate that was removed in favour of its keeper.
type Merge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ErrorRecord is a delete attempt that failed.
type ErrorRecord struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Ledger is the append-only record of destructive actions attempted in one
// run. It is safe for concurrent appends.
type Ledger struct {
	mu      sync.Mutex
	deleted []string
	merged  []Merge
	errors  []ErrorRecord
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger { return &Ledger{} }

// RecordDeleted appends a successful deletion.
func (l *Ledger) RecordDeleted(rel string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = append(l.deleted, rel)
}

// RecordMerged appends a duplicate resolution.
func (l *Ledger) RecordMerged(from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.merged = append(l.merged, Merge{From: from, To: to})
}

// RecordError appends a failed delete.
func (l *Ledger) RecordError(rel string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, ErrorRecord{File: rel, Error: err.Error()})
}

// WasDeleted reports whether rel was deleted earlier in the run.
func (l *Ledger) WasDeleted(rel string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.deleted {
		if d == rel {
			return true
		}
	}
	return false
}

// Counts returns the number of deleted, merged and failed entries.
func (l *Ledger) Counts() (deleted, merged, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.deleted), len(l.merged), len(l.errors)
}

// Report is the serialized form of a ledger.
type Report struct {
	Timestamp string        `json:"timestamp"`
	Deleted   []string      `json:"deleted"`
	Merged    []Merge       `json:"merged"`
	Errors    []ErrorRecord `json:"errors"`
}

// Report snapshots the ledger, stamped with at in RFC 3339 (ISO-8601) form.
func (l *Ledger) Report(at time.Time) Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := Report{
		Timestamp: at.UTC().Format(time.RFC3339),
		Deleted:   append([]string{}, l.deleted...),
		Merged:    append([]Merge{}, l.merged...),
		Errors:    append([]ErrorRecord{}, l.errors...),
	}
	return r
}

// WriteReport serializes r as indented JSON at path, creating parent directories.
func WriteReport(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := safeio.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- report path from configuration
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return r, nil
}
