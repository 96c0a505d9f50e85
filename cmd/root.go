package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/driftwatch/driftwatch/internal/store"
	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

var verbosity int

var storeDir string
var storeBadgerPath string

var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Explain CI test regressions by diffing package versions and commits against the last passing run",
	Long:  ``,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity. Can be repeated")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "bisect-data", "The directory holding the run record files")
	rootCmd.PersistentFlags().StringVar(&storeBadgerPath, "store-badger", "", "Use an embedded badger database at this path instead of the file store")
}

// newLogger returns a logger configured according to the verbosity flag.
func newLogger() *logrus.Logger {
	log := logrus.New()

	formatter := prefixed.TextFormatter{
		DisableTimestamp: true,
	}
	formatter.SetColorScheme(&prefixed.ColorScheme{})
	log.SetFormatter(&formatter)

	if verbosity == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if verbosity == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if verbosity == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}

	return log
}

// openStore opens the run record store selected by the persistent store
// flags. The returned closer is a no-op for the file store.
func openStore(log *logrus.Logger) (driftwatch.RunRecordStore, func() error, error) {
	if storeBadgerPath != "" {
		config := store.DefaultBadgerConfig(storeBadgerPath)
		config.Log = log
		badgerStore, err := store.OpenBadger(config)
		if err != nil {
			return nil, nil, err
		}
		return badgerStore, badgerStore.Close, nil
	}

	fileStore, err := store.NewFile(storeDir)
	if err != nil {
		return nil, nil, err
	}
	return fileStore, func() error { return nil }, nil
}
