package driftwatch

import (
	"errors"
	"fmt"
	"time"
)

// DefaultLookbackRuns is the number of records scanned by [FindLastPass] when
// no explicit horizon is configured.
const DefaultLookbackRuns = 100

// How many records to request from the store per ListBefore call.
const historyBatchSize = 50

// A LookbackHorizon bounds how far back [FindLastPass] scans the run history.
// This keeps the cost bounded on stores with long, mostly-failing histories.
type LookbackHorizon struct {
	MaxRuns int           // The maximum amount of records to scan. Values of 0 or less mean [DefaultLookbackRuns]
	MaxAge  time.Duration // How old a record may be to still be considered, or 0 for no age bound
}

// FindLastPass scans the store backward in time, starting strictly before the
// passed timestamp, and returns the most recent record in which the passed
// test passed. It returns nil if no such record exists within the horizon,
// which includes the case of a test that never appeared in any earlier record.
func FindLastPass(store RunRecordStore, testID string, before time.Time, horizon LookbackHorizon) (*RunRecord, error) {
	remaining := horizon.MaxRuns
	if remaining <= 0 {
		remaining = DefaultLookbackRuns
	}

	cursor := before
	for remaining > 0 {
		batch := historyBatchSize
		if batch > remaining {
			batch = remaining
		}
		records, err := store.ListBefore(cursor, batch)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("listing run records before %s failed", cursor.Format(time.RFC3339)), err)
		}
		if len(records) == 0 {
			return nil, nil
		}

		progressed := false
		for i := range records {
			record := records[i]
			// Records at or after the cursor violate the store's descending
			// strictly-earlier contract, skip them instead of looping.
			if !record.Timestamp.Before(cursor) {
				continue
			}
			progressed = true
			cursor = record.Timestamp

			if horizon.MaxAge > 0 && before.Sub(record.Timestamp) > horizon.MaxAge {
				return nil, nil
			}
			if record.Passed(testID) {
				return &record, nil
			}
			remaining--
			if remaining == 0 {
				return nil, nil
			}
		}
		if !progressed {
			return nil, nil
		}
	}
	return nil, nil
}
