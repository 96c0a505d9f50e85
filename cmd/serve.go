package cmd

import (
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/server"
	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

var servePort int
var serveRepoPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history and on-demand regression reports over HTTP",
	Long: `Serve starts an HTTP server exposing the stored run records. Runs can be
listed and submitted, and a regression report can be requested for any stored
run. Reports are built on demand against the history at request time.`,
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

		if serveRepoPath != "" {
			engine.Commits = &driftwatch.GitRepo{Path: serveRepoPath}
		}

		if _, err := server.NewServer(server.HTTP, servePort, engine); err != nil {
			return err
		}
		log.Infof("Serving run history on port %d", servePort)

		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	registerEngineFlags(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "The port the server listens on, 0 for a random free port")
	serveCmd.Flags().StringVar(&serveRepoPath, "repo", "", "Path to the checked out repository under test, used to resolve commit ranges")
}
