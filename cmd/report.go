package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

var reportResultsPath string
var reportVersionsPath string
var reportRunID string
var reportRepoPath string
var reportOutputPath string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Bisect the failing tests of the current run and write the Markdown report",
	Long: `Report builds the run record of the current CI run, searches the store for
the last run in which each failing test passed, diffs the package snapshots of
the two runs and writes a Markdown report explaining the regressions. The
record is appended to the store afterwards so later runs can bisect against
it.`,
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
		engine.Store = recordStore

		var repo driftwatch.GitRepo
		if reportRepoPath != "" {
			repo.Path = reportRepoPath
			engine.Commits = &repo
		}

		opts := driftwatch.CaptureOptions{
			PythonCommand:   engine.PythonCommand,
			Track:           engine.Track,
			NightlyPackages: engine.NightlyPackages,
		}

		var snapshot driftwatch.PackageSnapshot
		if reportVersionsPath != "" {
			file, err := os.Open(reportVersionsPath)
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

		results, failing, err := readTestResults(reportResultsPath)
		if err != nil {
			return err
		}

		record := driftwatch.RunRecord{
			RunID:     resolveRunID(reportRunID),
			Timestamp: time.Now().UTC(),
			Snapshot:  snapshot,
			Results:   results,
		}
		if reportRepoPath != "" {
			head, err := repo.Head(cmd.Context())
			if err != nil {
				log.Warnf("Could not determine HEAD of %s, reporting without it - %v", reportRepoPath, err)
			} else {
				record.Head = head
			}
		}

		report, err := engine.Analyze(cmd.Context(), record, failing)
		if err != nil {
			// The report is still valid when only the append failed
			if !errors.Is(err, driftwatch.ErrStoreAppend) {
				return err
			}
			log.Warnf("Report written, but this run was not recorded - %v", err)
		}

		return os.WriteFile(reportOutputPath, []byte(report), 0644)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	registerEngineFlags(reportCmd)
	reportCmd.Flags().StringVar(&reportResultsPath, "results", "", "Path to the test results file of this run")
	reportCmd.Flags().StringVar(&reportVersionsPath, "versions", "", "Path to a captured versions file, skips the live pip capture")
	reportCmd.Flags().StringVar(&reportRunID, "run-id", "", "The id of this CI run, defaults to $GITHUB_RUN_ID or a random id")
	reportCmd.Flags().StringVar(&reportRepoPath, "repo", "", "Path to the checked out repository under test, used to resolve commit ranges")
	reportCmd.Flags().StringVarP(&reportOutputPath, "output", "o", "bisect-comparison.md", "The file the Markdown report gets written to")

	if err := reportCmd.MarkFlagRequired("results"); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
