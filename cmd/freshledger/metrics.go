package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newMetricsCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print inventory and operation metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			families, err := e.metrics.Gather()
			if err != nil {
				return fmt.Errorf("gather metrics: %w", err)
			}
			for _, mf := range families {
				if _, err := expfmt.MetricFamilyToText(e.out, mf); err != nil {
					return err
				}
			}
			return nil
		},
	}
	// Inventory gauges reflect the state loaded when the command started; another
	// process writing the same database is not observed until restart.
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and /debug/vars over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(e.metrics, promhttp.HandlerOpts{}))
			mux.Handle("/debug/vars", expvar.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			e.logger.Info("serving metrics", zap.String("addr", addr))

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", ":9464", "listen address")
	cmd.AddCommand(serve)
	return cmd
}
