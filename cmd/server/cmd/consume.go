package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-events/internal/queue"
)

var activityDir string

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Write event change notifications to the activity log",
	Long: `Consume the event change queue and append one line per message to
<dir>/activity.log. Requires RABBITMQ_URL (or AMQP_URL).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer()
	},
}

func init() {
	consumeCmd.Flags().StringVar(&activityDir, "dir", "logs", "directory of activity.log")
}

func runConsumer() error {
	cfg, logger := loadConfig()
	if cfg.AMQP.URL == "" {
		return errors.New("RABBITMQ_URL is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := queue.NewActivityConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, activityDir, logger)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("consumer stopped")
	return nil
}
