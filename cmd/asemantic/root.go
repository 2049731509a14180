package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"
)

var (
	configFilePath string
	debug          bool
	logLevel       slog.LevelVar
)

var rootCmd = &cobra.Command{
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Use:   "asemantic",
	Short: "Asemantic fragment validation protocol drivers",
	Long: `Drivers for the asemantic fragment validation protocol.

Fragments are fixed-length pseudorandom byte strings carrying no
metadata. The sender and receiver stay synchronized through a
one-way evolution of shared state; the receiver validates by
bounded-window recomputation against a monotonic anchor.
`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			logLevel.Set(slog.LevelDebug)
		}
		if configFilePath != "" {
			viper.SetConfigFile(configFilePath)
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		}
		return nil
	},
}

// execute runs the root command. Called once from main.
func execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}
