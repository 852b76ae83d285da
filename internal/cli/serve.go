package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auditvault/auditvault/pkg/logging"
	"github.com/auditvault/auditvault/pkg/model"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Follow the audit logs and serve Prometheus metrics",
	Long: `Keep the search index current by following the audit logs and expose
Prometheus metrics on /metrics until interrupted.

Metrics are named auditvault_<subsystem>_<name>, for example
auditvault_writer_flushes_total and auditvault_backup_duration_seconds.

Examples:
  auditvault serve                 # listen on :2112
  auditvault serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}
		defer c.Close()
		logger := logging.L()

		mux := http.NewServeMux()
		mux.Handle("/metrics", c.Registry().Handler())
		srv := &http.Server{Addr: serveAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		followErr := make(chan error, 1)
		go func() {
			followErr <- c.Follow(ctx, func(path, line string, fields model.LogFields, ok bool) {
				if !ok {
					logger.Debug("unindexed audit line", zap.String("file", path))
				}
			})
		}()

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.ListenAndServe()
		}()
		fmt.Printf("Serving metrics at http://%s/metrics\n", serveAddr)

		var runErr error
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("metrics server: %w", err)
			}
		case err := <-followErr:
			runErr = err
		}
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":2112", "metrics listen address")
	rootCmd.AddCommand(serveCmd)
}
