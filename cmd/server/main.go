package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/config"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/logger"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/otelutil"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "pa-server",
		Short:         "Campus PA broadcast arbitration server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	root.PersistentFlags().Int("port", 8080, "listen port")
	root.PersistentFlags().String("host", "0.0.0.0", "listen host")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("server.port", root.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("server.host", root.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pa-server %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := otelutil.Init(); err != nil {
		log.Debug("tracing disabled", zap.Error(err))
	}
	defer otelutil.Flush()

	srv, err := NewServer(cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)
	return srv.Run(ctx)
}
