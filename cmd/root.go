package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/planboard/app"
	"github.com/kilianp07/planboard/config"
	"github.com/kilianp07/planboard/core/scheduler"
	"github.com/kilianp07/planboard/infra/logger"
)

var (
	cfgPath         string
	gateClosurePath string
)

var rootCmd = &cobra.Command{
	Use:          "planboard",
	Short:        "Flexibility planboard and settlement service",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file, empty for environment only")
	rootCmd.PersistentFlags().StringVar(&gateClosurePath, "gate-closure", "", "gate closure file overriding the gate_closure section")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)
	return svc.Run(ctx)
}

func newService() (*app.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if gateClosurePath != "" {
		cfg.GateClosure, err = scheduler.LoadConfig(gateClosurePath, cfg.GateClosure)
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func closeService(svc *app.Service) {
	if err := svc.Close(); err != nil {
		logger.New("main").Errorf("service close: %v", err)
	}
}
