package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/sherpa"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sherpa",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sherpa version %s\n", strings.TrimSpace(sherpa.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
