package driftwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrStoreAppend is returned by [Engine.Analyze] when appending the current
// run's record failed. The report returned alongside it is still valid, as
// the analysis does not depend on the append succeeding.
var ErrStoreAppend = errors.New("failed to append run record")

type engineYaml struct {
	TrackedPackages []string `yaml:"trackedPackages"`

	LookbackRuns int `yaml:"lookbackRuns" default:"100"`
	LookbackDays int `yaml:"lookbackDays"`

	PythonCommand string `yaml:"pythonCommand" default:"python3"`

	NightlyPackages []string `yaml:"nightlyPackages"`

	SectionLimit int `yaml:"sectionLimit" default:"4000"`
	ReportLimit  int `yaml:"reportLimit" default:"60000"`
}

// GetEngineFromConfig reads in an engine config in yaml format from a reader
// and initializes the corresponding engine struct. A tracked packages list
// consisting of the single entry "all" tracks every package present in either
// snapshot. The store and commit range provider still have to be set by the
// caller.
func GetEngineFromConfig(r io.Reader) (*Engine, error) {
	var config engineYaml

	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	track := TrackList(config.TrackedPackages...)
	if len(config.TrackedPackages) == 1 && strings.EqualFold(config.TrackedPackages[0], "all") {
		track = TrackAll()
	}

	return &Engine{
		Track: track,
		Horizon: LookbackHorizon{
			MaxRuns: config.LookbackRuns,
			MaxAge:  time.Duration(config.LookbackDays) * 24 * time.Hour,
		},
		Budget: ReportBudget{
			SectionLimit: config.SectionLimit,
			ReportLimit:  config.ReportLimit,
		},
		PythonCommand:   strings.Fields(config.PythonCommand),
		NightlyPackages: config.NightlyPackages,
	}, nil
}

// An Engine analyzes one CI run's failing tests against the run history. It
// is batch-oriented and processes the tests of one run sequentially, each
// test exactly once.
type Engine struct {
	Track   TrackSpec       // Which packages to include in version-diff analysis
	Horizon LookbackHorizon // How far back the history search may scan
	Budget  ReportBudget    // The size bounds of the rendered report

	PythonCommand   []string // The interpreter command used by [Engine.Capture]
	NightlyPackages []string // The packages installed from a nightly wheel index

	Log *logrus.Logger // The log to which information gets printed to

	Store   RunRecordStore      // The history of past run records
	Commits CommitRangeProvider // Resolves commit ranges, or nil to report version-only changes
}

// Capture captures the current environment's package snapshot using the
// engine's interpreter command and tracking configuration.
func (e *Engine) Capture(ctx context.Context) (PackageSnapshot, error) {
	return CaptureSnapshot(ctx, e.captureOptions())
}

func (e *Engine) captureOptions() CaptureOptions {
	return CaptureOptions{
		PythonCommand:   e.PythonCommand,
		Track:           e.Track,
		NightlyPackages: e.NightlyPackages,
	}
}

// Bisect processes a single failing test: it searches the history for the
// most recent run in which the test passed and, if one is found, computes the
// tracked package changes and their commit ranges. All failures are degraded,
// a failing history lookup yields a no-prior-pass result and an unresolvable
// commit range demotes that package to a version-only change.
func (e *Engine) Bisect(ctx context.Context, current RunRecord, testID string) BisectionResult {
	result := BisectionResult{TestID: testID}

	lastPass, err := FindLastPass(e.Store, testID, current.Timestamp, e.Horizon)
	if err != nil {
		e.logger().Warnf("History lookup for test %s failed, treating as no prior pass - %v", testID, err)
		return result
	}
	if lastPass == nil {
		e.logger().Debugf("No prior passing run for test %s", testID)
		return result
	}
	result.LastPass = lastPass
	result.Changes = Diff(lastPass.Snapshot, current.Snapshot, e.Track)

	if e.Commits == nil {
		return result
	}
	for _, change := range result.Changes {
		if change.FromHash == "" || change.ToHash == "" || change.FromHash == change.ToHash {
			continue
		}
		commits, err := e.Commits.CommitRangeSummary(ctx, change.FromHash, change.ToHash)
		if err != nil {
			e.logger().Debugf("Commit range %s..%s of package %s unresolved, reporting version-only change - %v",
				change.FromHash, change.ToHash, change.Package, err)
			continue
		}
		if result.CommitRanges == nil {
			result.CommitRanges = make(map[string]CommitRange)
			result.Commits = make(map[string][]CommitSummary)
		}
		result.CommitRanges[change.Package] = CommitRange{From: change.FromHash, To: change.ToHash}
		result.Commits[change.Package] = commits
	}
	return result
}

// Report bisects all passed failing tests against the history and renders the
// combined Markdown report. Duplicate test ids are processed once. The store
// is not modified.
func (e *Engine) Report(ctx context.Context, current RunRecord, failingTests []string) (string, []BisectionResult) {
	seen := make(map[string]bool, len(failingTests))
	var results []BisectionResult
	for _, testID := range failingTests {
		if testID == "" || seen[testID] {
			continue
		}
		seen[testID] = true
		results = append(results, e.Bisect(ctx, current, testID))
	}
	return RenderReport(current, results, e.Budget), results
}

// Analyze is the entry point for one engine invocation: it bisects all
// failing tests of the current run, renders the report and appends the
// current run's record to the store. The append happens after all reads so a
// run never bisects against itself. If the append fails, the report is still
// returned together with an error wrapping [ErrStoreAppend].
func (e *Engine) Analyze(ctx context.Context, current RunRecord, failingTests []string) (string, error) {
	report, results := e.Report(ctx, current, failingTests)

	windows := 0
	for _, result := range results {
		if !result.NoPriorPass() {
			windows++
		}
	}
	e.logger().Infof("Bisected %d failing tests, found a regression window for %d of them", len(results), windows)

	if err := e.Store.Append(current); err != nil {
		return report, fmt.Errorf("%w: run %s: %v", ErrStoreAppend, current.RunID, err)
	}
	return report, nil
}

func (e *Engine) logger() *logrus.Logger {
	if e.Log == nil {
		// Mute logger
		e.Log = logrus.New()
		e.Log.SetOutput(io.Discard)
	}
	return e.Log
}
