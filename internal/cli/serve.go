package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/memctl/memctl/pkg/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with background index maintenance",
	Long: `Run the retrieval engine in the foreground with the embedding
backfill job on its configured schedule, until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	zl := a.log.GetZerolog()

	backfill := scheduler.NewBackfill(scheduler.BackfillConfig{
		Store:        a.store,
		Provider:     a.provider,
		Logger:       zl,
		BatchSize:    a.cfg.Maintenance.BatchSize,
		SubBatchSize: a.cfg.Maintenance.SubBatchSize,
	})

	sched := scheduler.New(zl)
	if err := sched.Add("embedding-backfill", a.cfg.Maintenance.Schedule, func() {
		backfill.Run(context.Background())
	}); err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	zl.Info().Str("db", a.cfg.DBPath).Msg("memctl running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	zl.Info().Msg("Shutting down")
	return nil
}
