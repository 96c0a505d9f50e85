package driftwatch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// The status of one test in one CI run.
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
)

// A TestResult is the outcome of one test in one CI run.
type TestResult struct {
	Status   TestStatus    `json:"status"`
	Duration time.Duration `json:"duration,omitempty"`
	Message  string        `json:"message,omitempty"` // The failure message reported by the upstream log parser, if any
}

// A HeadCommit describes the checked out commit of the repository under test
// at the time of one CI run.
type HeadCommit struct {
	Hash    string `json:"hash"`
	Subject string `json:"subject,omitempty"`
	Author  string `json:"author,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Short returns the abbreviated commit hash.
func (h HeadCommit) Short() string {
	if len(h.Hash) <= 8 {
		return h.Hash
	}
	return h.Hash[:8]
}

// A RunRecord is one CI execution's package environment snapshot plus its
// per-test outcomes. Records are created at the end of a run, appended to a
// [RunRecordStore] and immutable thereafter.
type RunRecord struct {
	RunID     string                `json:"runId"`
	Timestamp time.Time             `json:"timestamp"`
	Snapshot  PackageSnapshot       `json:"packages"`
	Results   map[string]TestResult `json:"testResults"`
	Head      HeadCommit            `json:"head,omitempty"`
}

// Passed reports whether the passed test passed in this run. Tests without a
// recorded result are not considered passing.
func (r RunRecord) Passed(testID string) bool {
	result, ok := r.Results[testID]
	return ok && result.Status == TestStatusPass
}

// FailingTests returns the ids of all tests which failed in this run, sorted
// for determinism.
func (r RunRecord) FailingTests() []string {
	var failing []string
	for testID, result := range r.Results {
		if result.Status == TestStatusFail {
			failing = append(failing, testID)
		}
	}
	sort.Strings(failing)
	return failing
}

// Fingerprint returns a stable digest of this record's package snapshot,
// usable for deduplicating records of identical environments.
func (r RunRecord) Fingerprint() string {
	names := make([]string, 0, len(r.Snapshot))
	for name := range r.Snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	for _, name := range names {
		version := r.Snapshot[name]
		fmt.Fprintf(&builder, "%s=%s@%s\n", name, version.Version, version.CommitHash)
	}
	return digest.FromString(builder.String()).Encoded()
}

// A RunRecordStore is an append-only history of run records. The store
// guarantees that records returned by ListBefore are ordered by descending
// timestamp.
type RunRecordStore interface {
	// Append adds a record to the store.
	Append(record RunRecord) error
	// ListBefore returns up to limit records with a timestamp strictly
	// earlier than t, newest first. A limit of 0 or less means no limit.
	ListBefore(t time.Time, limit int) ([]RunRecord, error)
}
