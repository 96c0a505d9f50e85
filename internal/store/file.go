package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/otiai10/copy"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

// The timestamp layout used in record file names. Colons are not portable in
// file names, so they are folded into hyphens.
const fileTimestampLayout = "2006-01-02T15-04-05"

// A File store keeps one json file per run record in a directory. The layout
// matches the "run_<id>_<timestamp>.json" convention of bisection data
// branches, so a checkout of such a branch can be used as a store directly.
type File struct {
	Dir string
}

// NewFile opens a file store at the passed directory, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Join(fmt.Errorf("creating store directory %s failed", dir), err)
	}
	return &File{Dir: dir}, nil
}

func (s *File) Append(record driftwatch.RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Join(fmt.Errorf("marshaling record of run %s failed", record.RunID), err)
	}

	name := fmt.Sprintf("run_%s_%s.json", record.RunID, record.Timestamp.UTC().Format(fileTimestampLayout))
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0644); err != nil {
		return errors.Join(fmt.Errorf("writing record of run %s failed", record.RunID), err)
	}
	return nil
}

func (s *File) ListBefore(t time.Time, limit int) ([]driftwatch.RunRecord, error) {
	records, _, err := s.readAll()
	if err != nil {
		return nil, err
	}

	var result []driftwatch.RunRecord
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].Timestamp.Before(t) {
			continue
		}
		result = append(result, records[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// ExportTo copies the whole store directory to the passed destination, e.g.
// for archiving it as a CI artifact.
func (s *File) ExportTo(dst string) error {
	return copy.Copy(s.Dir, dst)
}

// Prune deletes the oldest record files until at most keep records remain.
// It returns the amount of deleted records.
func (s *File) Prune(keep int) (int, error) {
	records, paths, err := s.readAll()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(records) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, path := range paths[:len(records)-keep] {
		if err := os.Remove(path); err != nil {
			return deleted, errors.Join(fmt.Errorf("deleting record file %s failed", path), err)
		}
		deleted++
	}
	return deleted, nil
}

// readAll returns all readable records sorted by ascending timestamp,
// together with their file paths in the same order. Unreadable files are
// skipped, a partially broken history is still a usable history.
func (s *File) readAll() ([]driftwatch.RunRecord, []string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "run_*.json"))
	if err != nil {
		return nil, nil, err
	}

	type entry struct {
		record driftwatch.RunRecord
		path   string
	}
	var entries []entry
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var record driftwatch.RunRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		entries = append(entries, entry{record: record, path: path})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].record.Timestamp.Equal(entries[j].record.Timestamp) {
			return strings.Compare(entries[i].path, entries[j].path) < 0
		}
		return entries[i].record.Timestamp.Before(entries[j].record.Timestamp)
	})

	records := make([]driftwatch.RunRecord, len(entries))
	paths := make([]string, len(entries))
	for i, e := range entries {
		records[i] = e.record
		paths[i] = e.path
	}
	return records, paths, nil
}
