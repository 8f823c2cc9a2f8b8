package cli

import (
	"fmt"

	"github.com/memctl/memctl/pkg/scheduler"
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run one embedding backfill pass now",
	RunE:  runBackfill,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text index from the primary store",
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(reindexCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats := scheduler.NewBackfill(scheduler.BackfillConfig{
		Store:        a.store,
		Provider:     a.provider,
		Logger:       a.log.GetZerolog(),
		BatchSize:    a.cfg.Maintenance.BatchSize,
		SubBatchSize: a.cfg.Maintenance.SubBatchSize,
	}).Run(cmd.Context())

	fmt.Printf("attempted=%d succeeded=%d failed=%d\n", stats.Attempted, stats.Succeeded, stats.Failed)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.RebuildLexicalIndex(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("lexical index rebuilt")
	return nil
}
