package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/flock/internal/config"
	"github.com/ehrlich-b/flock/internal/logger"
	"github.com/ehrlich-b/flock/internal/parse"
	"github.com/ehrlich-b/flock/internal/server"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "flockd [key=value ...]",
		Short: "flock chat server",
		Long: `flockd runs the chat server. Settings come from an optional YAML config
file overridden by key=value tokens, e.g.:

  flockd host=0.0.0.0 port=50600`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, bad := parse.Args(args)
			for _, tok := range bad {
				fmt.Fprintf(os.Stderr, "option without value: %s use option=value syntax\n", tok)
			}

			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Apply(opts); err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel, cfg.LogFile, true); err != nil {
				return err
			}

			if configPath != "" {
				stop, err := config.WatchServer(configPath, func(next config.Server) {
					logger.Init(next.LogLevel, next.LogFile, true)
				})
				if err == nil {
					defer stop()
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			srv := server.New(server.Config{
				Host:        cfg.Host,
				Port:        cfg.Port,
				MaxUsers:    cfg.MaxUsers,
				SendWorkers: cfg.SendWorkers,
			})
			return srv.ListenAndServe(ctx)
		},
	}

	root.Flags().StringVar(&configPath, "config", "flockd.yaml", "config file path")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
