package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/sherpa"
)

var graphCmd = &cobra.Command{
	Use:   "graph [flow-file]",
	Short: "Export the flow as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of the flow definition. With
--session, the diagram overlays that session's progress: visited,
completed and current steps.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		opts := []sherpa.Option{sherpa.WithLogger(logger)}
		if sessionID != "" {
			store, err := buildStore()
			if err != nil {
				return err
			}
			opts = append(opts, sherpa.WithStore(store, sessionID))
		}

		eng, err := sherpa.Load(flowPath(args), opts...)
		if err != nil {
			return err
		}
		if sessionID != "" {
			if _, err := eng.Resume(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load session %q: %w", sessionID, err)
			}
		}

		fmt.Print(eng.Graph())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Overlay a session's progress onto the diagram")
}
