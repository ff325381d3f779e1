package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"freshledger/internal/blob"
	"freshledger/internal/config"
	"freshledger/internal/core"
	"freshledger/pkg/domain"
)

// env is the per-invocation state shared by every subcommand.
type env struct {
	cfgFile string
	as      string
	at      string
	trace   string

	out      io.Writer
	cfg      config.Config
	logger   *zap.Logger
	store    domain.PersistentStore
	registry *core.Registry
	metrics  *prometheus.Registry
	traceOut *os.File
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	e := &env{out: out}
	root := newRootCmd(e)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if closeErr := e.close(); err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "freshledger",
		Short:         "Track perishable inventory from manufacturer to customer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsRegistry(cmd) {
				return nil
			}
			return e.open()
		},
	}
	root.SetOut(e.out)
	root.PersistentFlags().StringVarP(&e.cfgFile, "config", "c", "", "config file (default ./"+config.DefaultFileName+" when present)")
	root.PersistentFlags().StringVar(&e.as, "as", "", "principal performing the operation")
	root.PersistentFlags().StringVar(&e.at, "at", "", "evaluate time-dependent operations at this instant (RFC 3339 or YYYY-MM-DD)")
	root.PersistentFlags().StringVar(&e.trace, "trace", "", "append one JSON span per registry mutation to this file")

	root.AddCommand(
		newInitCmd(e),
		newRoleCmd(e),
		newProductCmd(e),
		newDiscountCmd(e),
		newQueryCmd(e),
		newAnalyticsCmd(e),
		newReportCmd(e),
		newMetricsCmd(e),
		newConfigCmd(e),
	)
	return root
}

const skipRegistryAnnotation = "freshledger/skip-registry"

func skipsRegistry(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[skipRegistryAnnotation]; ok {
			return true
		}
	}
	return false
}

func (e *env) open() error {
	cfg, err := config.Load(e.cfgFile)
	if err != nil {
		return err
	}
	e.cfg = cfg
	if e.logger, err = cfg.Logger(); err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	prices, err := cfg.PriceEngine()
	if err != nil {
		return err
	}
	if e.store, err = core.OpenPersistentStore(cfg.Storage, nil, e.logger); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	e.metrics = prometheus.NewRegistry()
	opts := []core.Option{
		core.WithLogger(e.logger),
		core.WithPriceEngine(prices),
		core.WithIndexCache(cfg.Index.CacheTTL),
		core.WithMetrics(core.MultiMetrics(
			core.NewPrometheusMetricsRecorder(e.metrics, cfg.Metrics.Namespace),
			core.NewExpvarMetricsRecorder(""),
		)),
	}
	if e.trace != "" {
		if e.traceOut, err = os.OpenFile(e.trace, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			return fmt.Errorf("--trace: %w", err)
		}
		opts = append(opts, core.WithTracer(core.NewJSONTracer(e.traceOut)))
	}
	if e.at != "" {
		at, err := parseInstant(e.at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		opts = append(opts, core.WithClock(core.ClockFunc(func() time.Time { return at })))
	}
	e.registry = core.NewRegistry(e.store, opts...)
	e.metrics.MustRegister(core.NewInventoryCollector(e.store, e.registry.Clock(), cfg.Metrics.Namespace))
	return nil
}

func (e *env) close() error {
	if e.logger != nil {
		_ = e.logger.Sync()
	}
	var errs []error
	if e.traceOut != nil {
		errs = append(errs, e.traceOut.Close())
		e.traceOut = nil
	}
	if c, ok := e.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	e.store = nil
	return errors.Join(errs...)
}

func (e *env) caller() domain.Principal { return domain.Principal(e.as) }

func (e *env) now() time.Time { return e.registry.Clock().Now() }

func (e *env) openBlob(ctx context.Context) (blob.Store, error) {
	st, err := blob.Open(ctx, e.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return st, nil
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseInstant accepts RFC 3339 timestamps or bare dates at midnight UTC.
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is neither RFC 3339 nor YYYY-MM-DD", domain.ErrInvalidArgument, s)
	}
	return t, nil
}

func newInitCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init <owner>",
		Short: "Set the registry owner (once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.registry.Initialize(cmd.Context(), domain.Principal(args[0])); err != nil {
				return err
			}
			return e.print(e.registry.Roles(cmd.Context()))
		},
	}
}

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage configuration files",
		Annotations: map[string]string{skipRegistryAnnotation: ""},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			_, err := fmt.Fprintln(e.out, "wrote", path)
			return err
		},
	})
	return cmd
}
