package commands

import (
	"context"
	"errors"

	"github.com/macup/macup/pkg/config"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply the configuration whenever it changes",
		Long: `Apply the configuration once, then again every time the file is saved.

Set MACUP_METRICS_ADDR (e.g. ":9090") to serve run metrics over HTTP while
watching. Invalid edits are reported and the previous run is kept.`,
		Example: `  # Re-apply on every save
  macup watch

  # Watch with a metrics endpoint
  MACUP_METRICS_ADDR=:9090 macup watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.close()

			path, err := config.Find(configPath)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			if err := sess.tel.Metrics.StartMetricsServer(errCh); err != nil {
				return err
			}
			go func() {
				if err, ok := <-errCh; ok {
					sess.logger.WithError(err).Error("Metrics server failed")
				}
			}()

			w := cmd.OutOrStdout()
			if !jsonOutput && !opts.dryRun {
				subscribeProgress(sess.tel.Events, w)
			}
			applyOnce := func(ctx context.Context, cfg *config.Config) {
				ws, err := sess.workspaceFor(cfg, opts.overrides)
				if err == nil {
					err = runApply(ctx, w, sess, ws, nil, opts)
				}
				var exitErr *ExitError
				if err != nil && !errors.As(err, &exitErr) {
					sess.logger.WithError(err).Error("Apply failed")
				}
				// spans of a finished run are exported before waiting again
				if err := sess.tel.Flush(ctx); err != nil {
					sess.logger.WithError(err).Warn("Failed to flush traces")
				}
			}

			cfg, err := config.Load(path)
			if err != nil {
				sess.logger.WithError(err).Error("Invalid configuration, waiting for changes")
			} else {
				applyOnce(cmd.Context(), cfg)
			}

			return config.NewWatcher(path, sess.tel.Logger).Watch(cmd.Context(),
				func(ctx context.Context, cfg *config.Config, err error) {
					_ = sess.tel.Events.PublishConfigChanged(path)
					if err != nil {
						sess.logger.WithError(err).Error("Invalid configuration, waiting for changes")
						return
					}
					applyOnce(ctx, cfg)
				})
		},
	}

	opts.bind(cmd)
	return cmd
}
