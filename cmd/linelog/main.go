package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/linelog/internal/cmd/client"
	serverrun "github.com/rzbill/linelog/internal/cmd/server"
	cfgpkg "github.com/rzbill/linelog/internal/config"
	logpkg "github.com/rzbill/linelog/pkg/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "linelog",
		Short:        "linelog ring-buffer line log",
		Long:         "linelog keeps the most recent newline-terminated records in a fixed ring and serves them over TCP, HTTP and gRPC.",
		SilenceUsage: true,
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverCmd.AddCommand(newServerStartCommand())
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddCommands(rootCmd, apiURL)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start linelog server (socket, HTTP and gRPC)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			socketAddr, _ := cmd.Flags().GetString("socket")

			// stderr logger for anything before the server's own logger exists
			boot := logpkg.NewLogger(
				logpkg.WithFormatter(&logpkg.TextFormatter{}),
				logpkg.WithOutput(logpkg.NewConsoleOutput()),
			)
			if lvl, err := logpkg.ParseLevel(cfg.Log.Level); err == nil {
				boot.SetLevel(lvl)
			}
			boot.Debug("configuration loaded", logpkg.Any("config", cfg))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:    dataDir,
				GRPCAddr:   grpcAddr,
				HTTPAddr:   httpAddr,
				SocketAddr: socketAddr,
				Config:     cfg,
			}); err != nil {
				boot.Error("server failed", logpkg.Err(err))
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("config", os.Getenv("LINELOG_CONFIG"), "Config file (.yaml, .yml or .json)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("socket", ":9000", "Raw TCP listen address (empty disables)")
	f.String("http", ":8080", "HTTP listen address (empty disables)")
	f.String("grpc", ":50051", "gRPC listen address (empty disables)")
	f.Int("capacity", cfgpkg.Default().Device.Capacity, "Number of records retained by the ring")
	f.String("terminator", "", `Record terminator byte, escapes allowed (e.g. "\n", "\x1e")`)
	f.Int("max-pending-bytes", cfgpkg.Default().Device.MaxPendingBytes, "Cap on an unterminated record (-1 = unlimited)")
	f.Bool("archive", true, "Persist released records to the data directory")
	f.String("fsync", "", "Archive fsync mode: always|interval|never")
	f.Int("archive-max-records", 0, "Trim the archive beyond this many records (0 = keep all)")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json (default text)")
	return cmd
}

// loadConfig layers defaults, the config file, LINELOG_* variables and
// explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	cfg := cfgpkg.Default()
	f := cmd.Flags()
	if path, _ := f.GetString("config"); path != "" {
		loaded, err := cfgpkg.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfgpkg.FromEnv(&cfg)

	if f.Changed("capacity") {
		cfg.Device.Capacity, _ = f.GetInt("capacity")
	}
	if f.Changed("terminator") {
		v, _ := f.GetString("terminator")
		cfg.Device.Terminator = cfgpkg.Unescape(v)
	}
	if f.Changed("max-pending-bytes") {
		cfg.Device.MaxPendingBytes, _ = f.GetInt("max-pending-bytes")
	}
	if f.Changed("archive") {
		cfg.Archive.Enabled, _ = f.GetBool("archive")
	}
	if f.Changed("fsync") {
		cfg.Archive.Fsync, _ = f.GetString("fsync")
	}
	if f.Changed("archive-max-records") {
		cfg.Archive.MaxRecords, _ = f.GetInt("archive-max-records")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	return cfg, cfg.Validate()
}

func apiURL() string {
	if v := os.Getenv("LINELOG_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
