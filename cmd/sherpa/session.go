package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted sessions",
	Long:  `List, inspect, and remove sessions in the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := buildStore()
		if err != nil {
			return err
		}
		ids, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print a session's snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := buildStore()
		if err != nil {
			return err
		}
		snap, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load session %q: %w", args[0], err)
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := buildStore()
		if err != nil {
			return err
		}
		var failed bool
		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				fmt.Printf("Error removing %q: %v\n", id, err)
				failed = true
				continue
			}
			fmt.Printf("Removed session %q\n", id)
		}
		if failed {
			return fmt.Errorf("some sessions could not be removed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}
