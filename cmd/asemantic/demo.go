package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	asemantic "github.com/asemantix/asemantic-go"
)

var demoPayload string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a self-contained end-to-end Mode A exchange",
	Long: `Provision ephemeral material, emit two fragments, validate them,
and show that a replayed fragment lands below the anchor and is
silently rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := asemantic.GenerateDomainTag()
		if err != nil {
			return err
		}
		seed, err := asemantic.GenerateSeed()
		if err != nil {
			return err
		}
		slog.Info("provisioned", "domain", fmt.Sprintf("%x", domain[:8]), "seed", fmt.Sprintf("%x...", seed[:8]))

		builder, err := asemantic.NewModeA(domain, seed)
		if err != nil {
			return err
		}
		defer builder.Close()
		state, err := asemantic.NewReceiverModeA(seed)
		if err != nil {
			return err
		}
		defer state.Close()
		asemantic.Wipe(seed)
		validator, err := asemantic.NewValidator(domain)
		if err != nil {
			return err
		}

		payload := []byte(demoPayload)

		f0 := builder.Build(payload)
		slog.Info("emitted", "fragment", fmt.Sprintf("%x...", f0[:8]), "bytes", len(f0))
		res, idx := validator.ValidateAndCommit(f0, state, payload)
		slog.Info("validated", "result", res.String(), "index", idx, "anchor", state.Anchor())
		builder.Advance()

		f1 := builder.Build(payload)
		slog.Info("emitted", "fragment", fmt.Sprintf("%x...", f1[:8]), "bytes", len(f1))
		res, idx = validator.ValidateAndCommit(f1, state, payload)
		slog.Info("validated", "result", res.String(), "index", idx, "anchor", state.Anchor())
		builder.Advance()

		res, _ = validator.Validate(f0, state, payload)
		slog.Info("replayed first fragment", "result", res.String(), "anchor", state.Anchor())
		return nil
	},
}

func init() {
	demoCmd.Flags().StringVar(&demoPayload, "payload", "ALARM_LEVEL_3", "application payload")
	rootCmd.AddCommand(demoCmd)
}
