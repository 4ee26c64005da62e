package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/flock/internal/client"
	"github.com/ehrlich-b/flock/internal/config"
	"github.com/ehrlich-b/flock/internal/logger"
	"github.com/ehrlich-b/flock/internal/parse"
	"github.com/ehrlich-b/flock/internal/termio"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "flock [key=value ...]",
		Short: "flock terminal chat client",
		Long: `flock connects to a chat server and multiplexes a live input line with
incoming messages, e.g.:

  flock host=localhost port=50600`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadClientConfig(configPath, args)
			if err != nil {
				return err
			}

			keys, err := termio.OpenTerminalKeys(os.Stdin)
			if err != nil {
				return err
			}
			defer keys.Close()

			return client.Run(cfg, keys, os.Stdout)
		},
	}

	bot := &cobra.Command{
		Use:   "bot [key=value ...]",
		Short: "run the demo chat bot",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadClientConfig(configPath, args)
			if err != nil {
				return err
			}
			return client.Bot(cfg)
		},
	}

	root.AddCommand(bot)
	root.PersistentFlags().StringVar(&configPath, "config", "flock.yaml", "config file path")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadClientConfig(path string, args []string) (config.Client, error) {
	opts, bad := parse.Args(args)
	for _, tok := range bad {
		fmt.Fprintf(os.Stderr, "option without value: %s use option=value syntax\n", tok)
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Apply(opts); err != nil {
		return cfg, err
	}
	// stdout belongs to the terminal engine, so no console logging
	if err := logger.Init(cfg.LogLevel, cfg.LogFile, false); err != nil {
		return cfg, err
	}
	return cfg, nil
}
