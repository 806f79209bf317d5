package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [grammar-file]",
	Short: "Ask a question and print the decoded answer",
	Long: `Submits a query to the endpoint and waits for an answer. The grammar is
read from --grammar, from the given file, or from stdin when the file is '-'.
Feedback from the endpoint extends the wait by another --timeout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grammarText, err := readGrammar(cmd, args)
		if err != nil {
			return err
		}
		target, _ := cmd.Flags().GetString("target")
		description, _ := cmd.Flags().GetString("description")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []hmi.Option
		if !asJSON {
			opts = append(opts, hmi.WithLifecycleHooks(tui.NewPrinter(cmd.OutOrStdout()).Hooks()))
		}
		client, closeClient, err := connect(ctx, cmd, cfg, logger, opts...)
		if err != nil {
			return err
		}
		defer closeClient()

		result, err := client.Query(ctx, description, grammarText, target, timeoutFlag(cmd, cfg))
		if err != nil {
			return err
		}
		if !asJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "%v\n", result.Semantics)
			return nil
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"sentence":  result.Sentence,
			"semantics": result.Semantics,
			"talker_id": client.LastTalkerID(),
		})
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringP("grammar", "g", "", "Grammar text, e.g. 'T -> pick COLOR; COLOR[{color: red}] -> red'")
	queryCmd.Flags().StringP("target", "t", "T", "Start symbol of the grammar")
	queryCmd.Flags().StringP("description", "d", "", "Question shown or spoken to the person")
	queryCmd.Flags().Duration("timeout", 0, "Time without feedback before giving up (default from config)")
	queryCmd.Flags().Bool("json", false, "Print the result as JSON")
}
