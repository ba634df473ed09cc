package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/sherpa"
	"github.com/aretw0/sherpa/internal/presentation/tui"
	"github.com/aretw0/sherpa/pkg/session"
)

var runCmd = &cobra.Command{
	Use:   "run [flow-file]",
	Short: "Run a flow interactively in the terminal",
	Long: `Starts the flow in interactive mode. The session is persisted through
the configured store, so an interrupted run resumes where it stopped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		noStore, _ := cmd.Flags().GetBool("no-store")
		sessionID, _ := cmd.Flags().GetString("session")

		opts := []sherpa.Option{sherpa.WithLogger(logger)}
		if !noStore {
			store, err := buildStore()
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = session.NewID()
			}
			opts = append(opts, sherpa.WithStore(store, sessionID))
		}

		eng, err := sherpa.Load(flowPath(args), opts...)
		if err != nil {
			return err
		}

		interactive := !headless && tui.IsInteractive(os.Stdout)
		if interactive {
			tui.PrintBanner(sherpa.Version)
		}

		runner := &sherpa.Runner{
			Input:    os.Stdin,
			Output:   os.Stdout,
			Headless: headless,
		}
		if interactive {
			runner.Renderer = tui.NewRenderer()
		}
		return runner.Run(cmd.Context(), eng)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("headless", false, "Advance without prompts until the flow completes")
	runCmd.Flags().Bool("no-store", false, "Run without session persistence")
	runCmd.Flags().String("session", "", "Session ID to resume (default: a new ID)")
}
