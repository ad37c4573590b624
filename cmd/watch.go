package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd(app *app) *cobra.Command {
	var (
		metricsAddr string
		once        bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-render the dashboard whenever account data changes",
		Long:  "Re-render the dashboard whenever account data changes. With --metrics-addr the usage gauges are also served to prometheus at /metrics.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cmd, app, metricsAddr, once)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", app.cfg.Metrics.Addr, "Serve prometheus metrics on this address (for example :9464)")
	cmd.Flags().BoolVar(&once, "once", false, "Render the first dashboard and exit")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, app *app, metricsAddr string, once bool) error {
	user, err := requireUser(cmd, app)
	if err != nil {
		return err
	}
	data, err := app.dataService(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		listener, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("listen metrics: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "metrics: http://%s/metrics\n", listener.Addr())

		mux := http.NewServeMux()
		mux.Handle("/metrics", app.recorder.Handler())
		server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()

		users, unsubscribe, err := app.auth.Subscribe(ctx)
		if err != nil {
			return err
		}
		defer unsubscribe()

		usages, stopWatch, err := data.Watch(ctx, user.ID)
		if err != nil {
			return err
		}
		defer stopWatch()

		rendered := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case current, ok := <-users:
				if !ok {
					return nil
				}
				if current == nil || current.ID != user.ID {
					return fmt.Errorf("%w; run `lsc login`", domain.ErrNotAuthenticated)
				}
			case dash, ok := <-usages:
				if !ok {
					return nil
				}
				if rendered > 0 {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nupdated %s\n", app.now().In(app.location).Format("15:04:05"))
				}
				if err := writeDashboardOutput(cmd, app, dash, false); err != nil {
					return err
				}
				rendered++
				app.logger.Debug("dashboard refreshed", zap.String("user_id", string(user.ID)), zap.Int("accounts", len(dash)))

				if once {
					return nil
				}
			}
		}
	})

	return g.Wait()
}
