package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

// One entry of the test results file, as produced by the upstream log parser.
type testOutcome struct {
	TestID   string  `json:"testId"`
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	Duration float64 `json:"durationSeconds"`
}

// readTestResults reads a test results file and returns the per-test results
// together with the ids of the failing tests, in file order.
func readTestResults(path string) (map[string]driftwatch.TestResult, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var outcomes []testOutcome
	if err := json.Unmarshal(data, &outcomes); err != nil {
		return nil, nil, err
	}

	results := make(map[string]driftwatch.TestResult, len(outcomes))
	var failing []string
	for _, outcome := range outcomes {
		if outcome.TestID == "" {
			continue
		}

		var status driftwatch.TestStatus
		switch outcome.Status {
		case "pass", "passed":
			status = driftwatch.TestStatusPass
		case "fail", "failed", "error":
			status = driftwatch.TestStatusFail
		default:
			// Skipped and xfailed tests don't take part in bisection
			continue
		}

		results[outcome.TestID] = driftwatch.TestResult{
			Status:   status,
			Message:  outcome.Message,
			Duration: time.Duration(outcome.Duration * float64(time.Second)),
		}
		if status == driftwatch.TestStatusFail {
			failing = append(failing, outcome.TestID)
		}
	}
	return results, failing, nil
}
