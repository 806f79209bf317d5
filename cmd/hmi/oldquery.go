package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/internal/presentation/tui"
	"github.com/aretw0/hmi/pkg/legacy"
	"github.com/spf13/cobra"
)

var oldQueryCmd = &cobra.Command{
	Use:   "old-query SPEC",
	Short: "Ask a question written as a sentence template",
	Long: `Asks for one of the sentences described by SPEC, where each <name>
placeholder stands for one of the values given in --choices, e.g.

  hmi old-query 'a <size> pizza' --choices '{size: [small, large]}'

A timeout prints an empty result; a failed or unparseable answer prints nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawChoices, _ := cmd.Flags().GetString("choices")
		choices, err := legacy.ParseChoices(rawChoices)
		if err != nil {
			return err
		}

		cfg, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, closeClient, err := connect(ctx, cmd, cfg, logger,
			hmi.WithLifecycleHooks(tui.NewPrinter(cmd.ErrOrStderr()).Hooks()))
		if err != nil {
			return err
		}
		defer closeClient()

		result, err := client.OldQuery(ctx, args[0], choices, timeoutFlag(cmd, cfg))
		if err != nil {
			return err
		}
		if result != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%q %v\n", result.Result, result.Choices)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(oldQueryCmd)
	oldQueryCmd.Flags().StringP("choices", "c", "{}", "Ordered YAML mapping of choice name to values")
	oldQueryCmd.Flags().Duration("timeout", 0, "Time without feedback before giving up (default from config)")
}
