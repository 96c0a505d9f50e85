package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

var configPath string

var trackedPackages []string
var nightlyPackages []string
var pythonCommand string

var lookbackRuns int
var lookbackDays int

var sectionLimit int
var reportLimit int

// registerEngineFlags adds the engine configuration flags to a command. The
// flags are ignored when a config file is passed.
func registerEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the engine config in yaml format, overrides the other engine flags")
	cmd.Flags().StringSliceVar(&trackedPackages, "track", []string{"all"}, "The packages whose version changes get analyzed, or \"all\"")
	cmd.Flags().StringSliceVar(&nightlyPackages, "nightly", nil, "The packages installed from a nightly wheel index")
	cmd.Flags().StringVar(&pythonCommand, "python", "python3", "The interpreter command of the environment which ran the tests")
	cmd.Flags().IntVar(&lookbackRuns, "lookback-runs", driftwatch.DefaultLookbackRuns, "How many past runs the history search may scan")
	cmd.Flags().IntVar(&lookbackDays, "lookback-days", 0, "How many days back the history search may scan, 0 for no age bound")
	cmd.Flags().IntVar(&sectionLimit, "section-limit", driftwatch.DefaultSectionLimit, "The character budget of a single report section")
	cmd.Flags().IntVar(&reportLimit, "report-limit", driftwatch.DefaultReportLimit, "The character budget of the whole report")
}

// buildEngine initializes an engine from the config file if one was passed, or
// from the engine flags otherwise. The store still has to be set by the
// caller.
func buildEngine(log *logrus.Logger) (*driftwatch.Engine, error) {
	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		engine, err := driftwatch.GetEngineFromConfig(file)
		if err != nil {
			return nil, err
		}
		engine.Log = log
		return engine, nil
	}

	track := driftwatch.TrackList(trackedPackages...)
	if len(trackedPackages) == 1 && strings.EqualFold(trackedPackages[0], "all") {
		track = driftwatch.TrackAll()
	}

	return &driftwatch.Engine{
		Track: track,
		Horizon: driftwatch.LookbackHorizon{
			MaxRuns: lookbackRuns,
			MaxAge:  time.Duration(lookbackDays) * 24 * time.Hour,
		},
		Budget: driftwatch.ReportBudget{
			SectionLimit: sectionLimit,
			ReportLimit:  reportLimit,
		},
		PythonCommand:   strings.Fields(pythonCommand),
		NightlyPackages: nightlyPackages,
		Log:             log,
	}, nil
}
