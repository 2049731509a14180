package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	asemantic "github.com/asemantix/asemantic-go"
)

var (
	sendSnapshotPath string
	sendPayload      string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Emit one fragment and advance the sender state",
	Long: `Build a fragment for the payload at the sender's current chain
position, print it as hex, advance the chain, and persist the new
builder snapshot. The snapshot file is created from the configured
provisioning material on first use.

The snapshot is only rewritten after the fragment has been printed,
so an emission that fails partway can be retried with unchanged
state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		builder, err := loadOrProvisionBuilder(cfg)
		if err != nil {
			return err
		}
		defer builder.Close()

		fragment := builder.Build([]byte(sendPayload))
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(fragment))

		builder.Advance()
		if err := saveSnapshot(builder, sendSnapshotPath); err != nil {
			return err
		}
		slog.Debug("sender advanced", "index", builder.Index())
		return nil
	},
}

func loadOrProvisionBuilder(cfg *Config) (*asemantic.FragmentBuilder, error) {
	data, err := os.ReadFile(sendSnapshotPath)
	switch {
	case err == nil:
		return asemantic.Restore(data, asemantic.CounterEvol())
	case os.IsNotExist(err):
		if cfg.Protocol.Mode == "B" {
			return asemantic.NewModeB(cfg.Protocol.domainBytes(), asemantic.CounterEvol(),
				asemantic.WithBuildBits(cfg.Protocol.Bits))
		}
		seed := cfg.Protocol.seedBytes()
		defer asemantic.Wipe(seed)
		return asemantic.NewModeA(cfg.Protocol.domainBytes(), seed,
			asemantic.WithBuildBits(cfg.Protocol.Bits))
	default:
		return nil, fmt.Errorf("reading builder snapshot: %w", err)
	}
}

// saveSnapshot writes the snapshot with the same temp-then-rename
// discipline the receiver store uses.
func saveSnapshot(b *asemantic.FragmentBuilder, path string) error {
	data, err := b.Snapshot()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendSnapshotPath, "snapshot", "", "path to the builder snapshot file")
	sendCmd.Flags().StringVar(&sendPayload, "payload", "", "application payload")
	sendCmd.MarkFlagRequired("snapshot")
	sendCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if sendPayload == "" {
			return errors.New("a payload is required")
		}
		return nil
	}
	rootCmd.AddCommand(sendCmd)
}
