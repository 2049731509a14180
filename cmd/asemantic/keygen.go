package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	asemantic "github.com/asemantix/asemantic-go"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate provisioning material (domain tag and seed)",
	Long: `Generate a fresh domain separation tag and initial seed K_0.

Both values must reach the peer over the out-of-band provisioning
channel; neither ever appears on the fragment channel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := asemantic.GenerateDomainTag()
		if err != nil {
			return err
		}
		seed, err := asemantic.GenerateSeed()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "domain: %s\n", hex.EncodeToString(domain))
		fmt.Fprintf(cmd.OutOrStdout(), "seed:   %s\n", hex.EncodeToString(seed))
		asemantic.Wipe(seed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
