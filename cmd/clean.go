package cmd

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/store"
)

var cleanKeep int
var cleanAssumeYes bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old run records from the file store",
	Long: `Clean deletes all but the newest records from the file store. Runs older
than the lookback horizon can never be picked as a last passing run, keeping
them around only grows the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		if storeBadgerPath != "" {
			return fmt.Errorf("clean only supports the file store, compact the badger store by reopening it")
		}

		fileStore, err := store.NewFile(storeDir)
		if err != nil {
			return err
		}

		if !cleanAssumeYes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Delete all but the newest %d run records in %s", cleanKeep, storeDir),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				log.Info("Aborted, no records were deleted")
				return nil
			}
		}

		deleted, err := fileStore.Prune(cleanKeep)
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d run records\n", deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().IntVar(&cleanKeep, "keep", 50, "How many of the newest run records to keep")
	cleanCmd.Flags().BoolVarP(&cleanAssumeYes, "assume-yes", "y", false, "Skip the confirmation prompt")
}
