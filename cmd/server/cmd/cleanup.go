package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/service"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete events past the retention grace period",
	Long: `Run one retention sweep and exit. Events whose date lies more than
SWEEP_GRACE (default 24h) in the past are deleted together with their
thumbnails, and cached event listings are invalidated.

Examples:
  campus-events cleanup
  SWEEP_GRACE=48h campus-events cleanup`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanup(cmd.Context())
	},
}

func runCleanup(ctx context.Context) error {
	cfg, logger := loadConfig()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	rdb := config.NewRedisClient(cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}
	store := buildCache(cfg, rdb, logger)
	notify, pub := buildNotifier(cfg, store, logger)
	defer pub.Close()

	sweeper := service.NewSweeper(st.events, buildImages(ctx, cfg, logger), notify, cfg.Sweep, logger)
	n, err := sweeper.RunOnce(ctx, service.TriggerManual)
	notify.Wait()
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d past event(s)\n", n)
	return nil
}
