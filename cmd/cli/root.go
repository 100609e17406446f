// Package cli implements the modelfarm command-line tool.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/turtacn/modelfarm/internal/application"
	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/internal/infrastructure/monitoring"
	"github.com/turtacn/modelfarm/pkg/logger"
	"github.com/turtacn/modelfarm/sdk/go/modelfarm"
)

// runtime holds what every command shares once configuration is loaded.
type runtime struct {
	configPath string

	cfg      *config.Config
	log      logger.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	tracing  *monitoring.TracingManager
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:   "modelfarm",
		Short: "A client for the model farm inference API.",
		Long: `modelfarm acquires identity tokens for the model farm API, verifies them,
negotiates L402 credentials and streams responses from the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rt.tracing == nil {
				return nil
			}
			return rt.tracing.Shutdown(context.Background())
		},
	}
	rootCmd.PersistentFlags().StringVar(&rt.configPath, "config", "", "config file (default ./modelfarm.yaml or $HOME/.config/modelfarm/modelfarm.yaml)")

	rootCmd.AddCommand(
		newTokenCommand(rt),
		newVerifyCommand(rt),
		newL402Command(rt),
		newStreamCommand(rt),
		newSidecarCommand(rt),
		newIdentityCommand(),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure. SIGINT and
// SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func (rt *runtime) load() error {
	cfg, err := config.LoadConfig(rt.configPath, nil)
	if err != nil {
		return err
	}
	log, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		return err
	}
	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, log)
	if err != nil {
		return err
	}

	rt.cfg = cfg
	rt.log = log
	rt.registry = prometheus.NewRegistry()
	rt.metrics = monitoring.NewMetrics(rt.registry)
	rt.tracing = tracing
	return nil
}

func (rt *runtime) dependencies() application.Dependencies {
	return application.Dependencies{
		Logger:  rt.log,
		Metrics: rt.metrics,
		Tracer:  rt.tracing.Tracer(),
	}
}

func (rt *runtime) identity(ctx context.Context) (*application.IdentityService, error) {
	return application.NewIdentityService(ctx, rt.cfg, rt.dependencies())
}

func (rt *runtime) client(ctx context.Context) (*modelfarm.Client, *application.IdentityService, error) {
	return modelfarm.FromConfig(ctx, rt.cfg, rt.dependencies())
}
