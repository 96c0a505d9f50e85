package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dchest/uniuri"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

var captureResultsPath string
var captureVersionsPath string
var captureRunID string
var captureRepoPath string

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record the current run's package snapshot and test results in the store",
	Long: `Capture reads the test results produced by the upstream log parser, captures
the installed package versions and appends the combined run record to the
store. The versions are captured live from the interpreter given by --python,
or read from a previously captured versions file when --versions is passed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		engine, err := buildEngine(log)
		if err != nil {
			return err
		}

		recordStore, closeStore, err := openStore(log)
		if err != nil {
			return err
		}
		defer closeStore()

		opts := driftwatch.CaptureOptions{
			PythonCommand:   engine.PythonCommand,
			Track:           engine.Track,
			NightlyPackages: engine.NightlyPackages,
		}

		var snapshot driftwatch.PackageSnapshot
		if captureVersionsPath != "" {
			file, err := os.Open(captureVersionsPath)
			if err != nil {
				return err
			}
			defer file.Close()
			snapshot, err = driftwatch.LoadCapturedSnapshot(file, opts)
			if err != nil {
				return err
			}
		} else {
			snapshot, err = driftwatch.CaptureSnapshot(cmd.Context(), opts)
			if err != nil {
				return err
			}
		}

		results, failing, err := readTestResults(captureResultsPath)
		if err != nil {
			return err
		}

		record := driftwatch.RunRecord{
			RunID:     resolveRunID(captureRunID),
			Timestamp: time.Now().UTC(),
			Snapshot:  snapshot,
			Results:   results,
		}
		if captureRepoPath != "" {
			repo := driftwatch.GitRepo{Path: captureRepoPath}
			head, err := repo.Head(cmd.Context())
			if err != nil {
				log.Warnf("Could not determine HEAD of %s, recording the run without it - %v", captureRepoPath, err)
			} else {
				record.Head = head
			}
		}

		if err := recordStore.Append(record); err != nil {
			return err
		}

		log.Infof("Recorded run %s with %d packages, %d test results and %d failing tests",
			record.RunID, len(record.Snapshot), len(record.Results), len(failing))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	registerEngineFlags(captureCmd)
	captureCmd.Flags().StringVar(&captureResultsPath, "results", "", "Path to the test results file of this run")
	captureCmd.Flags().StringVar(&captureVersionsPath, "versions", "", "Path to a captured versions file, skips the live pip capture")
	captureCmd.Flags().StringVar(&captureRunID, "run-id", "", "The id of this CI run, defaults to $GITHUB_RUN_ID or a random id")
	captureCmd.Flags().StringVar(&captureRepoPath, "repo", "", "Path to the checked out repository under test, records its HEAD commit")

	if err := captureCmd.MarkFlagRequired("results"); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// resolveRunID returns the passed run id, or the id of the surrounding CI run,
// or a freshly generated one.
func resolveRunID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envID := os.Getenv("GITHUB_RUN_ID"); envID != "" {
		return envID
	}
	return uniuri.New()
}
