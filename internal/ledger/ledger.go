// Package ledger persists the titles that were fully processed so later runs
// skip them. The file format is a flat JSON object of title -> true.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Ledger is the set of processed track titles.
type Ledger struct {
	mu     sync.Mutex
	path   string
	titles map[string]bool
	dirty  bool
}

// Load reads the ledger at path. A missing file yields an empty ledger.
func Load(path string) (*Ledger, error) {
	l := &Ledger{path: path, titles: make(map[string]bool)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.titles); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	for title, done := range l.titles {
		if !done {
			delete(l.titles, title)
		}
	}
	return l, nil
}

// Done reports whether title was processed before.
func (l *Ledger) Done(title string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.titles[title]
}

// Mark records title as processed.
func (l *Ledger) Mark(title string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.titles[title] {
		l.titles[title] = true
		l.dirty = true
	}
}

// Forget removes title so it is processed again. It reports whether the
// title was present.
func (l *Ledger) Forget(title string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.titles[title] {
		return false
	}
	delete(l.titles, title)
	l.dirty = true
	return true
}

// Titles returns the processed titles in sorted order.
func (l *Ledger) Titles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.titles))
	for title := range l.titles {
		out = append(out, title)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of processed titles.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.titles)
}

// Save writes the ledger back when it changed. The file is replaced
// atomically so an interrupted run never leaves a truncated ledger.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil
	}

	data, err := json.MarshalIndent(l.titles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	l.dirty = false
	return nil
}
