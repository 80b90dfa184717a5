package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/planline/planline/internal/application"
	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/logger"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "planline",
	Short: "Planline is a project management backend with realtime collaboration",
	Long:  `Project management backend: boards, sprints, collaborative documents and live presence over websockets.`,
	Example: `
  planline serve --db-host localhost --db-port 27017
  planline serve --log-level debug --metrics-port 2112
  planline serve --config /path/to/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		// Command line flags override the loaded configuration.
		flags := cmd.Flags()
		if flags.Changed("db-host") {
			cfg.Database.Server, _ = flags.GetString("db-host")
		}
		if flags.Changed("db-port") {
			cfg.Database.Port, _ = flags.GetInt("db-port")
		}
		if flags.Changed("listen-addr") {
			cfg.Server.ListenAddr, _ = flags.GetString("listen-addr")
		}
		if flags.Changed("metrics-port") {
			cfg.Metrics.Port, _ = flags.GetInt("metrics-port")
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")

	rootCmd.PersistentFlags().String("db-host", "localhost", "MongoDB host")
	rootCmd.PersistentFlags().Int("db-port", 27017, "MongoDB port")
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP listen address")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-file", "", "Path to the log file")
	rootCmd.PersistentFlags().String("log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().Int("metrics-port", 2112, "Port for Prometheus metrics server")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of planline",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")
	rootCmd.AddCommand(versionCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the planline server",
		Long:  "Start the planline API and websocket server with the specified configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfgFile, _ = cmd.Flags().GetString("config")
			if cfgFile != "" {
				absPath, err := filepath.Abs(cfgFile)
				if err != nil {
					logger.Error("Failed to resolve absolute path for config", zap.Error(err))
					os.Exit(1)
				}
				cfgFile = absPath
				logger.Info("Using config file", zap.String("config_file", cfgFile))
			}

			ctx := cmd.Context()

			logger.Info("Starting planline...")
			app, err := application.New(ctx, cfg, GetVersion())
			if err != nil {
				logger.Error("Failed to initialize the server", zap.Error(err))
				os.Exit(1)
			}

			go func() {
				<-ctx.Done()
				app.Shutdown()
			}()

			if err := app.Start(); err != nil {
				logger.Error("Failed to start the server", zap.Error(err))
				os.Exit(1)
			}

			logger.Info("Planline started successfully")
		},
	}

	rootCmd.AddCommand(serveCmd)
}
