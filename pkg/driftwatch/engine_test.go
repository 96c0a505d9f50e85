package driftwatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRangeProvider struct {
	ranges map[string][]CommitSummary // keyed "from..to"
}

func (p *fakeRangeProvider) CommitRangeSummary(ctx context.Context, from, to string) ([]CommitSummary, error) {
	commits, ok := p.ranges[from+".."+to]
	if !ok {
		return nil, ErrRangeUnresolvable
	}
	return commits, nil
}

type failingAppendStore struct {
	testStore
}

func (s *failingAppendStore) Append(record RunRecord) error {
	return errors.New("disk full")
}

func TestGetEngineFromConfig(t *testing.T) {
	yml := `
trackedPackages:
  - numpy
  - pandas
lookbackRuns: 25
lookbackDays: 14
pythonCommand: "conda run python"
nightlyPackages:
  - numpy
sectionLimit: 2000
reportLimit: 30000
`

	engine, err := GetEngineFromConfig(strings.NewReader(yml))
	assert.Nil(t, err, "GetEngineFromConfig returned an error")

	assert.Equal(t, []string{"numpy", "pandas"}, engine.Track.Names(), "Mismatch in engine field")
	assert.False(t, engine.Track.TracksAll(), "Mismatch in engine field")
	assert.Equal(t, 25, engine.Horizon.MaxRuns, "Mismatch in engine field")
	assert.Equal(t, 14*24*time.Hour, engine.Horizon.MaxAge, "Mismatch in engine field")
	assert.Equal(t, []string{"conda", "run", "python"}, engine.PythonCommand, "Mismatch in engine field")
	assert.Equal(t, []string{"numpy"}, engine.NightlyPackages, "Mismatch in engine field")
	assert.Equal(t, 2000, engine.Budget.SectionLimit, "Mismatch in engine field")
	assert.Equal(t, 30000, engine.Budget.ReportLimit, "Mismatch in engine field")
}

func TestGetEngineFromConfigDefaults(t *testing.T) {
	engine, err := GetEngineFromConfig(strings.NewReader(`trackedPackages: ["all"]`))
	assert.Nil(t, err, "GetEngineFromConfig returned an error")

	assert.True(t, engine.Track.TracksAll(), `The "all" sentinel was not recognized`)
	assert.Equal(t, 100, engine.Horizon.MaxRuns, "Wrong default")
	assert.Equal(t, time.Duration(0), engine.Horizon.MaxAge, "Wrong default")
	assert.Equal(t, []string{"python3"}, engine.PythonCommand, "Wrong default")
	assert.Equal(t, 4000, engine.Budget.SectionLimit, "Wrong default")
	assert.Equal(t, 60000, engine.Budget.ReportLimit, "Wrong default")
}

func TestEngineBisect(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		{
			RunID:     "100",
			Timestamp: base,
			Snapshot:  PackageSnapshot{"numpy": {Version: "1.24.0+gaaaaaaa1", CommitHash: "aaaaaaa1"}},
			Results:   map[string]TestResult{"t": {Status: TestStatusPass}},
		},
	}}
	provider := &fakeRangeProvider{ranges: map[string][]CommitSummary{
		"aaaaaaa1..bbbbbbb2": {{Hash: "bbbbbbb2", Subject: "Break everything"}},
	}}
	engine := &Engine{Track: TrackAll(), Store: store, Commits: provider}

	current := RunRecord{
		RunID:     "101",
		Timestamp: base.Add(time.Hour),
		Snapshot:  PackageSnapshot{"numpy": {Version: "1.25.0+gbbbbbbb2", CommitHash: "bbbbbbb2"}},
		Results:   map[string]TestResult{"t": {Status: TestStatusFail}},
	}

	result := engine.Bisect(context.Background(), current, "t")
	assert.False(t, result.NoPriorPass(), "No regression window found")
	assert.Equal(t, "100", result.LastPass.RunID, "Wrong last-pass run")
	assert.Len(t, result.Changes, 1, "Wrong amount of changes")
	assert.Equal(t, CommitRange{From: "aaaaaaa1", To: "bbbbbbb2"}, result.CommitRanges["numpy"], "Wrong commit range")
	assert.Equal(t, "Break everything", result.Commits["numpy"][0].Subject, "Wrong commit summary")
}

func TestEngineBisectUnresolvableRangeIsVersionOnly(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		{
			RunID:     "100",
			Timestamp: base,
			Snapshot: PackageSnapshot{
				"numpy":  {Version: "1.24.0", CommitHash: "aaaaaaa1"},
				"pandas": {Version: "2.0.0", CommitHash: "ccccccc3"},
			},
			Results: map[string]TestResult{"t": {Status: TestStatusPass}},
		},
	}}
	// Only numpy's range resolves
	provider := &fakeRangeProvider{ranges: map[string][]CommitSummary{
		"aaaaaaa1..bbbbbbb2": {{Hash: "bbbbbbb2", Subject: "Some change"}},
	}}
	engine := &Engine{Track: TrackAll(), Store: store, Commits: provider}

	current := RunRecord{
		RunID:     "101",
		Timestamp: base.Add(time.Hour),
		Snapshot: PackageSnapshot{
			"numpy":  {Version: "1.25.0", CommitHash: "bbbbbbb2"},
			"pandas": {Version: "2.1.0", CommitHash: "ddddddd4"},
		},
	}

	result := engine.Bisect(context.Background(), current, "t")
	assert.Len(t, result.Changes, 2, "Wrong amount of changes")
	assert.Contains(t, result.CommitRanges, "numpy", "Resolvable range missing")
	assert.NotContains(t, result.CommitRanges, "pandas", "Unresolvable range was not demoted to a version-only change")
}

func TestEngineBisectStoreErrorIsNoPriorPass(t *testing.T) {
	engine := &Engine{Track: TrackAll(), Store: &testStore{listErr: errors.New("store gone")}}

	result := engine.Bisect(context.Background(), RunRecord{RunID: "1", Timestamp: time.Now()}, "t")
	assert.True(t, result.NoPriorPass(), "Store error did not degrade to no prior pass")
}

func TestEngineAnalyzeAppendsAfterReads(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		{
			RunID:     "100",
			Timestamp: base,
			Snapshot:  PackageSnapshot{"numpy": {Version: "1.24.0"}},
			Results:   map[string]TestResult{"t": {Status: TestStatusPass}},
		},
	}}
	engine := &Engine{Track: TrackAll(), Store: store}

	current := RunRecord{
		RunID:     "101",
		Timestamp: base.Add(time.Hour),
		Snapshot:  PackageSnapshot{"numpy": {Version: "1.25.0"}},
		Results:   map[string]TestResult{"t": {Status: TestStatusFail}},
	}

	report, err := engine.Analyze(context.Background(), current, []string{"t"})
	assert.Nil(t, err, "Analyze returned an error")
	assert.Contains(t, report, "numpy: 1.24.0 → 1.25.0", "Report misses the version change")
	assert.Len(t, store.records, 2, "Current run's record was not appended")
}

func TestEngineAnalyzeSurvivesAppendFailure(t *testing.T) {
	store := &failingAppendStore{}
	engine := &Engine{Track: TrackAll(), Store: store}

	current := RunRecord{RunID: "101", Timestamp: time.Now()}
	report, err := engine.Analyze(context.Background(), current, []string{"t"})

	assert.ErrorIs(t, err, ErrStoreAppend, "Append failure not surfaced")
	assert.Contains(t, report, "No prior successful run found", "Report was discarded because of the append failure")
}

func TestEngineAnalyzeProcessesEachTestOnce(t *testing.T) {
	store := &testStore{}
	engine := &Engine{Track: TrackAll(), Store: store}

	current := RunRecord{RunID: "101", Timestamp: time.Now()}
	_, results := engine.Report(context.Background(), current, []string{"t", "t", "", "u"})

	var ids []string
	for _, result := range results {
		ids = append(ids, result.TestID)
	}
	assert.Equal(t, []string{"t", "u"}, ids, "Duplicate or empty test ids were not filtered")
}
