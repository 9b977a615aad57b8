package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/xl-gateway/cmd/worker"
	"github.com/jmehdipour/xl-gateway/internal/config"
	"github.com/jmehdipour/xl-gateway/internal/logger"
	"github.com/jmehdipour/xl-gateway/internal/remote"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "xl-gateway",
		Short: "MyXL account session and purchase gateway",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (defaults are embedded)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(otpCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(qrisCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}

// loadConfig reads the config and builds the process logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Encoding)
	return cfg, nil
}

func newRemoteClient(cfg config.Config) *remote.Client {
	return remote.NewClient(remote.Opts{
		CIAMBaseURL:   cfg.Remote.CIAMBaseURL,
		APIBaseURL:    cfg.Remote.APIBaseURL,
		BasicAuth:     cfg.Remote.BasicAuth,
		UserAgent:     cfg.Remote.UserAgent,
		Timeout:       cfg.Remote.Timeout,
		FailThreshold: cfg.Remote.Breaker.FailThreshold,
		OpenFor:       cfg.Remote.Breaker.OpenFor,
		MaxBodyBytes:  cfg.Remote.MaxBodyBytes,
		Logger:        logger.Named("remote"),
	})
}
