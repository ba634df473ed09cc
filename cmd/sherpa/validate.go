package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/sherpa"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow-file]",
	Short: "Check a flow definition for structural defects",
	Long:  `Parses the flow file and reports duplicate IDs, dangling references and malformed checklists.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flowPath(args)
		eng, err := sherpa.Load(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Printf("Flow %q is valid: %d steps.\n", eng.Name, len(eng.Steps()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
