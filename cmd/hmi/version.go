package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/hmi"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of hmi",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hmi version %s\n", strings.TrimSpace(hmi.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
