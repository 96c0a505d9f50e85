package driftwatch

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testStore is a minimal in-memory RunRecordStore for exercising the history
// search without pulling in a real store implementation.
type testStore struct {
	records   []RunRecord
	listErr   error
	listCalls int
}

func (s *testStore) Append(record RunRecord) error {
	s.records = append(s.records, record)
	return nil
}

func (s *testStore) ListBefore(t time.Time, limit int) ([]RunRecord, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	sorted := append([]RunRecord{}, s.records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	var result []RunRecord
	for _, record := range sorted {
		if !record.Timestamp.Before(t) {
			continue
		}
		result = append(result, record)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func runAt(id string, t time.Time, results map[string]TestResult) RunRecord {
	return RunRecord{RunID: id, Timestamp: t, Results: results}
}

func TestFindLastPassEmptyStore(t *testing.T) {
	record, err := FindLastPass(&testStore{}, "tests/test_a.py::test_foo", time.Now(), LookbackHorizon{})
	assert.Nil(t, err)
	assert.Nil(t, record, "Empty store yielded a passing run")
}

func TestFindLastPassNeverPassed(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		runAt("1", base, map[string]TestResult{"t": {Status: TestStatusFail}}),
		runAt("2", base.Add(time.Hour), map[string]TestResult{"t": {Status: TestStatusFail}}),
	}}

	record, err := FindLastPass(store, "t", base.Add(2*time.Hour), LookbackHorizon{})
	assert.Nil(t, err)
	assert.Nil(t, record, "Test which never passed yielded a passing run")
}

func TestFindLastPassUnknownTest(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		runAt("1", base, map[string]TestResult{"other": {Status: TestStatusPass}}),
	}}

	record, err := FindLastPass(store, "brand-new-test", base.Add(time.Hour), LookbackHorizon{})
	assert.Nil(t, err)
	assert.Nil(t, record, "Test missing from all records yielded a passing run")
}

func TestFindLastPassReturnsMostRecent(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		runAt("t1", base, map[string]TestResult{"t": {Status: TestStatusPass}}),
		runAt("t2", base.Add(time.Hour), map[string]TestResult{"t": {Status: TestStatusFail}}),
		runAt("t3", base.Add(2*time.Hour), map[string]TestResult{"t": {Status: TestStatusPass}}),
	}}

	record, err := FindLastPass(store, "t", base.Add(3*time.Hour), LookbackHorizon{})
	assert.Nil(t, err)
	if assert.NotNil(t, record, "No passing run found") {
		assert.Equal(t, "t3", record.RunID, "Not the most recent passing run")
	}
}

func TestFindLastPassExcludesCurrentRun(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		// The current run itself, present in the store. Its timestamp is not
		// strictly earlier and must be skipped.
		runAt("current", base, map[string]TestResult{"t": {Status: TestStatusPass}}),
	}}

	record, err := FindLastPass(store, "t", base, LookbackHorizon{})
	assert.Nil(t, err)
	assert.Nil(t, record, "Run bisected against itself")
}

func TestFindLastPassHorizonMaxRuns(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []RunRecord{
		// The only passing run is 10 runs back
		runAt("pass", base, map[string]TestResult{"t": {Status: TestStatusPass}}),
	}
	for i := 1; i <= 9; i++ {
		records = append(records, runAt("fail", base.Add(time.Duration(i)*time.Hour), map[string]TestResult{"t": {Status: TestStatusFail}}))
	}
	store := &testStore{records: records}
	before := base.Add(10 * time.Hour)

	record, err := FindLastPass(store, "t", before, LookbackHorizon{MaxRuns: 5})
	assert.Nil(t, err)
	assert.Nil(t, record, "Horizon of 5 runs reached a run 10 records back")

	record, err = FindLastPass(store, "t", before, LookbackHorizon{MaxRuns: 10})
	assert.Nil(t, err)
	assert.NotNil(t, record, "Horizon of 10 runs missed the passing run")
}

func TestFindLastPassHorizonMaxAge(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &testStore{records: []RunRecord{
		runAt("old-pass", base, map[string]TestResult{"t": {Status: TestStatusPass}}),
		runAt("fail", base.Add(47*time.Hour), map[string]TestResult{"t": {Status: TestStatusFail}}),
	}}
	before := base.Add(48 * time.Hour)

	record, err := FindLastPass(store, "t", before, LookbackHorizon{MaxAge: 24 * time.Hour})
	assert.Nil(t, err)
	assert.Nil(t, record, "Age horizon of 24h reached a run 48h back")

	record, err = FindLastPass(store, "t", before, LookbackHorizon{MaxAge: 72 * time.Hour})
	assert.Nil(t, err)
	assert.NotNil(t, record, "Age horizon of 72h missed the passing run")
}

func TestFindLastPassStoreError(t *testing.T) {
	wantErr := errors.New("store gone")
	record, err := FindLastPass(&testStore{listErr: wantErr}, "t", time.Now(), LookbackHorizon{})
	assert.Nil(t, record)
	assert.ErrorIs(t, err, wantErr, "Store error not propagated")
}

func TestFindLastPassPagesThroughHistory(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var records []RunRecord
	records = append(records, runAt("pass", base, map[string]TestResult{"t": {Status: TestStatusPass}}))
	for i := 1; i <= 60; i++ {
		records = append(records, runAt("fail", base.Add(time.Duration(i)*time.Minute), map[string]TestResult{"t": {Status: TestStatusFail}}))
	}
	store := &testStore{records: records}

	record, err := FindLastPass(store, "t", base.Add(time.Hour+time.Minute), LookbackHorizon{MaxRuns: 100})
	assert.Nil(t, err)
	if assert.NotNil(t, record, "Passing run beyond the first batch not found") {
		assert.Equal(t, "pass", record.RunID)
	}
	assert.Greater(t, store.listCalls, 1, "History search did not page")
}
