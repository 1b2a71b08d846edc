package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-value-server/pkg/circuitbreaker"
	"crm-value-server/pkg/collector"
	"crm-value-server/pkg/config"
	"crm-value-server/pkg/messaging"
	"crm-value-server/pkg/metrics"
	"crm-value-server/pkg/orchestrator"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logger    = logrus.New()
	appConfig *config.Config

	logLevel  string
	noPublish bool
)

var rootCmd = &cobra.Command{
	Use:   "valuescore",
	Short: "Multimodal customer value analysis",
	Long: `valuescore fuses written, spoken, browsing and interaction records of CRM
customers into a value assessment. Records come from the configured collector
source (demo data, a JSON fixture file or Redis).`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noPublish, "no-publish", false, "Do not publish results even when AMQP is enabled")
}

func setup(cmd *cobra.Command, args []string) error {
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.ApplyLogging(logger); err != nil {
		return err
	}

	metrics.StartMetrics(logger, cfg.Metrics.Enabled)
	appConfig = cfg
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// environment holds the collaborators built from configuration for one run.
type environment struct {
	sources   collector.Sources
	directory collector.CustomerDirectory
	lister    collector.CustomerLister
	publisher *messaging.ResultPublisher
	closers   []func()
}

func newEnvironment(cfg *config.Config) (*environment, error) {
	env := &environment{}

	switch cfg.Collector.Source {
	case "memory":
		env.sources = collector.FromSource(collector.NewDemoSource(time.Now))
	case "file":
		src, err := collector.LoadFile(cfg.Collector.FixturePath)
		if err != nil {
			return nil, err
		}
		env.sources = collector.FromSource(src)
		env.directory = src
		env.lister = src
	case "redis":
		src, err := collector.NewRedisSource(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		env.sources = collector.FromSource(src)
		env.directory = src
		env.lister = src
		env.closers = append(env.closers, func() {
			if err := src.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Redis client")
			}
		})
	default:
		return nil, fmt.Errorf("unknown collector source %q", cfg.Collector.Source)
	}

	if cfg.Collector.BreakerEnabled {
		manager := circuitbreaker.NewManager(logger, &circuitbreaker.Config{
			FailureThreshold: cfg.Collector.BreakerFailureThreshold,
			SuccessThreshold: cfg.Collector.BreakerSuccessThreshold,
			Timeout:          cfg.Collector.BreakerTimeout,
			RequestTimeout:   cfg.Collector.Timeout,
		})
		env.sources = collector.NewGuarded(env.sources, manager, logger).Sources()
	}

	if cfg.Messaging.Enabled && !noPublish {
		publisher := messaging.NewResultPublisher(logger, cfg.Messaging)
		if err := publisher.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP unavailable, results will not be published")
		} else {
			env.publisher = publisher
			env.closers = append(env.closers, publisher.Disconnect)
		}
	}

	return env, nil
}

func (e *environment) orchestrator(cfg *config.Config) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithBatchConcurrency(cfg.Orchestrator.BatchConcurrency),
		orchestrator.WithLookback(cfg.Orchestrator.DefaultLookback),
	}
	if e.directory != nil {
		opts = append(opts, orchestrator.WithDirectory(e.directory))
	}
	if e.publisher != nil {
		opts = append(opts, orchestrator.WithSink(e.publisher))
	}
	return orchestrator.New(logger, cfg.Scoring, e.sources, opts...)
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
