package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/search"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "streamhub",
	Short:   "Catalog search aggregator and HLS proxy",
	Long:    `streamhub fans searches out to video catalog APIs, proxies HLS playback and caches live channel lists.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.LoadConfig(cfgFile)

		level := cfg.LogLevel
		if cfg.Debug {
			level = "DEBUG"
		}
		if logLevel != "" {
			level = logLevel
		}
		logger.Configure(logger.Options{
			Level:      level,
			File:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "configuration file path (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd(), searchCmd(), refreshCmd(), initConfigCmd())
}

func serveCmd() *cobra.Command {
	var autoRefresh bool

	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("auto-refresh") {
				a.refresher.SetOverride(&autoRefresh)
			}
			a.refresher.Start()

			server := &http.Server{
				Addr:              cfg.Listen,
				Handler:           newRouter(a),
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("Starting streamhub %s", Version)
			logger.Info("Server configuration:")
			logger.Info("  - Listen: %s", cfg.Listen)
			logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
			logger.Info("  - Catalog Sources: %d", len(cfg.Sources))
			logger.Info("  - Live Sources: %d", len(cfg.LiveSources))
			logger.Info("  - Search Timeout: %s", cfg.SearchTimeout)
			logger.Info("  - Max Results: %d per source, %d total", cfg.MaxResultsPerSource, cfg.MaxTotalResults())
			logger.Info("  - Search Cache TTL: %s", cfg.SearchCacheTTL)
			logger.Info("  - Refresh Interval: %s", cfg.RefreshInterval)
			logger.Info("  - Auto Refresh: %v", a.refresher.AutoRefreshEnabled(ctx))
			logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Warn("Shutdown requested, draining connections...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server shutdown with an error: %v", err)
			}
			logger.Info("Shutdown complete")
			return nil
		},
	}

	command.Flags().BoolVar(&autoRefresh, "auto-refresh", false, "force live-source auto-refresh on or off for this run, overriding the stored setting")
	return command
}

func searchCmd() *cobra.Command {
	var q search.Query

	command := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one aggregated search and print the results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			q.Text = strings.Join(args, " ")
			q.NoCache = true
			result, err := a.aggregator.Search(cmd.Context(), q)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	command.Flags().BoolVar(&q.IncludeAdult, "adult", false, "also query adult sources")
	command.Flags().BoolVar(&q.DisableFilter, "no-filter", false, "skip the category denylist")
	return command
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [live-source-key]",
		Short: "Refresh live channel lists once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				count, err := a.channels.Refresh(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d channels\n", args[0], count)
				return nil
			}

			for _, r := range a.refresher.RefreshAll(cmd.Context()) {
				if r.Error != "" {
					fmt.Fprintf(out, "%s: failed: %s\n", r.SourceKey, r.Error)
					continue
				}
				fmt.Fprintf(out, "%s: %d channels\n", r.SourceKey, r.Count)
			}
			return nil
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write an example configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateExampleConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}
