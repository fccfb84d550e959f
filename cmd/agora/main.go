package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/agora/pkg/api"
	"github.com/cuemby/agora/pkg/client"
	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/manager"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/reconciler"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Agora - multi-tenant commerce platform",
	Long: `Agora runs many independent storefronts out of one process: catalog,
carts, checkout, inventory, consignment, media, and reporting, each
isolated per tenant and resolved by Host header.

One binary serves the storefront API, the operator API, webhook intake,
and signed object transfers.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Agora version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("manager", "127.0.0.1:8080", "Manager address for admin commands")
	rootCmd.PersistentFlags().String("token", os.Getenv("AGORA_ADMIN_TOKEN"), "Operator bearer token (defaults to AGORA_ADMIN_TOKEN)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(rateLimitCmd)
	rootCmd.AddCommand(impersonateCmd)
	rootCmd.AddCommand(statusCmd)
}

// adminClient builds the admin API client from the persistent flags.
func adminClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("manager")
	token, _ := cmd.Flags().GetString("token")
	return client.New(addr, token)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Agora manager",
	Long: `Start the manager: the HTTP API, job workers, scheduled sweeps, and
the reconciler. The process serves every tenant bound to its base domain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			cfg.Storage.DataDir = dataDir
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSONOutput,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		metrics.SetVersion(Version)
		logger := log.WithComponent("main")

		mgr, err := manager.NewManager(cfg)
		if err != nil {
			return fmt.Errorf("create manager: %w", err)
		}
		if err := mgr.Start(); err != nil {
			return fmt.Errorf("start manager: %w", err)
		}

		recon := reconciler.NewReconciler(mgr)
		recon.Start()

		srv := api.NewServer(mgr)
		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				errCh <- err
			}
		}()

		// Live reload for the settings that tolerate it: the watcher applies
		// the log level itself, the callback re-applies the rate-limit
		// budget. Best effort; a broken watch never stops the server.
		var watcher *config.Watcher
		if cfgPath != "" {
			onApply := func(next *config.Config) {
				mgr.Limiter().SetCapacity(next.RateLimit.RequestsPerMinute)
			}
			if watcher, err = config.NewWatcher(cfgPath, onApply); err != nil {
				logger.Warn().Err(err).Msg("config watcher unavailable")
				watcher = nil
			} else {
				watcher.Start()
			}
		}

		logger.Info().
			Str("listen", cfg.Server.Listen).
			Str("base_domain", cfg.Server.BaseDomain).
			Str("version", Version).
			Msg("agora manager running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("api server failed")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()

		if watcher != nil {
			watcher.Stop()
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api shutdown incomplete")
		}
		recon.Stop()
		mgr.Stop()

		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to config YAML (AGORA_* env vars override)")
	serverCmd.Flags().String("listen", "", "Override the listen address")
	serverCmd.Flags().String("data-dir", "", "Override the data directory")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show manager health",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		hs, err := c.Health()
		if err != nil {
			return err
		}

		fmt.Printf("Status:  %s\n", hs.Status)
		if hs.Version != "" {
			fmt.Printf("Version: %s\n", hs.Version)
		}
		fmt.Printf("Uptime:  %s\n", hs.Uptime)
		if len(hs.Components) > 0 {
			fmt.Println("Components:")
			for name, state := range hs.Components {
				fmt.Printf("  %-12s %s\n", name, state)
			}
		}
		return nil
	},
}
