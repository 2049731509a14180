package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	asemantic "github.com/asemantix/asemantic-go"
)

var (
	recvPayload      string
	recvRatePerSec   float64
	recvConstantTime bool
)

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Validate fragments read from stdin",
	Long: `Read hex-encoded fragments from stdin, one per line, and validate
each against the configured receiver state with the expected
payload. Accepted fragments advance the anchor, which is persisted
when a state path or dsn is configured.

Validation attempts are rate limited: the validator is a local
oracle and an unauthenticated guesser must not get to query it at
line speed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := cfg.State.openStore()
		if err != nil {
			return err
		}

		stateOpts := []asemantic.StateOption{}
		if store != nil {
			stateOpts = append(stateOpts, asemantic.WithStore(store))
		}
		var state *asemantic.ReceiverState
		if cfg.Protocol.Mode == "A" {
			seed := cfg.Protocol.seedBytes()
			state, err = asemantic.NewReceiverModeA(seed, stateOpts...)
			asemantic.Wipe(seed)
		} else {
			state, err = asemantic.NewReceiverModeB(stateOpts...)
		}
		if err != nil {
			return err
		}
		defer state.Close()

		validatorOpts := []asemantic.ValidatorOption{
			asemantic.WithWindow(cfg.Protocol.Window),
			asemantic.WithValidateBits(cfg.Protocol.Bits),
		}
		if cfg.Protocol.Mode == "B" {
			validatorOpts = append(validatorOpts, asemantic.WithEvol(asemantic.CounterEvol()))
		}
		if recvConstantTime {
			validatorOpts = append(validatorOpts, asemantic.WithConstantTime())
		}
		validator, err := asemantic.NewValidator(cfg.Protocol.domainBytes(), validatorOpts...)
		if err != nil {
			return err
		}

		limiter := rate.NewLimiter(rate.Limit(recvRatePerSec), 1)
		payload := []byte(recvPayload)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := limiter.Wait(context.Background()); err != nil {
				return err
			}
			fragment, err := hex.DecodeString(line)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), asemantic.ResultError.String())
				continue
			}
			res, idx := validator.ValidateAndCommit(fragment, state, payload)
			if res == asemantic.ResultAccept {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", res, idx)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
			}
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		stats := validator.Stats()
		slog.Debug("validator statistics",
			"validations", stats.Validations,
			"accepts", stats.Accepts,
			"rejects", stats.Rejects,
			"comparisons", stats.Comparisons,
		)
		return nil
	},
}

func init() {
	recvCmd.Flags().StringVar(&recvPayload, "payload", "", "expected application payload")
	recvCmd.Flags().Float64Var(&recvRatePerSec, "rate", 10, "maximum validation attempts per second")
	recvCmd.Flags().BoolVar(&recvConstantTime, "constant-time", false, "use the side-channel hardened full-window search")
	recvCmd.MarkFlagRequired("payload")
	rootCmd.AddCommand(recvCmd)
}
