package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/hmi/internal/presentation/graph"
	"github.com/aretw0/hmi/internal/presentation/tui"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/spf13/cobra"
)

var grammarCmd = &cobra.Command{
	Use:   "grammar",
	Short: "Work with query grammars offline",
}

var grammarVerifyCmd = &cobra.Command{
	Use:   "verify [grammar-file]",
	Short: "Check a grammar for undefined symbols",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, target, err := loadGrammar(cmd, args)
		if err != nil {
			return err
		}
		if err := p.Verify(target); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Grammar is valid! ✅")
		return nil
	},
}

var grammarSampleCmd = &cobra.Command{
	Use:   "sample [grammar-file]",
	Short: "Print random sentences the grammar accepts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, target, err := loadGrammar(cmd, args)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")
		sentences, err := p.RandomSentences(target, count)
		if err != nil {
			return err
		}
		for _, s := range sentences {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

var grammarInspectCmd = &cobra.Command{
	Use:   "inspect [grammar-file]",
	Short: "Describe a grammar: productions, examples and symbol graph",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, target, err := loadGrammar(cmd, args)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")
		raw, _ := cmd.Flags().GetBool("raw")

		report := tui.GrammarReport(p, target, count)
		if !raw {
			if report, err = tui.NewRenderer()(report); err != nil {
				return err
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), report)
		return nil
	},
}

var grammarGraphCmd = &cobra.Command{
	Use:   "graph [grammar-file]",
	Short: "Export the grammar symbols as a Mermaid diagram",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, target, err := loadGrammar(cmd, args)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(p, target))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(grammarCmd)
	for _, c := range []*cobra.Command{grammarVerifyCmd, grammarSampleCmd, grammarInspectCmd, grammarGraphCmd} {
		c.Flags().StringP("grammar", "g", "", "Grammar text instead of a file")
		c.Flags().StringP("target", "t", "T", "Start symbol of the grammar")
		grammarCmd.AddCommand(c)
	}
	grammarSampleCmd.Flags().IntP("count", "n", 5, "Number of sentences")
	grammarInspectCmd.Flags().IntP("count", "n", 3, "Number of example sentences")
	grammarInspectCmd.Flags().Bool("raw", false, "Print markdown without rendering it")
}

func loadGrammar(cmd *cobra.Command, args []string) (*grammar.Parser, string, error) {
	text, err := readGrammar(cmd, args)
	if err != nil {
		return nil, "", err
	}
	target, _ := cmd.Flags().GetString("target")
	p, err := grammar.FromString(text)
	return p, target, err
}

// readGrammar returns --grammar, or the contents of args[0] ('-' is stdin).
func readGrammar(cmd *cobra.Command, args []string) (string, error) {
	text, _ := cmd.Flags().GetString("grammar")
	switch {
	case text != "" && len(args) > 0:
		return "", fmt.Errorf("give either --grammar or a grammar file, not both")
	case text != "":
		return text, nil
	case len(args) == 0:
		return "", fmt.Errorf("a grammar is required: pass --grammar or a file")
	case args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read grammar: %w", err)
	}
	return string(data), nil
}
