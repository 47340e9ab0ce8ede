package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/stride"
	"github.com/aretw0/stride/internal/cli"
	"github.com/aretw0/stride/internal/presentation/graph"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted session state",
	Long:  `List, inspect, remove and clean up the session-state records of the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all known sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()
		return cli.ListSessions(cmd.Context(), cmd.OutOrStdout(), engine.StateStore())
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the state record of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		rec, err := engine.StateStore().Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		if asGraph, _ := cmd.Flags().GetBool("graph"); asGraph {
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(domain.Stages(), &graph.Overlay{
				CurrentStage: rec.CurrentStage,
				HasPlan:      rec.PrescriptionExists,
			}))
			return nil
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more session records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()
		return cli.RemoveSessions(cmd.Context(), cmd.OutOrStdout(), engine.StateStore(), args)
	},
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove records idle for longer than the stale threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		olderThan := engine.Config().Session.StaleAfter
		if cmd.Flags().Changed("older-than") {
			olderThan, _ = cmd.Flags().GetDuration("older-than")
		}
		n, err := engine.StateStore().CleanupStale(cmd.Context(), olderThan)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale session(s) idle for more than %s\n", n, olderThan)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	sessionInspectCmd.Flags().Bool("graph", false, "Print the stage diagram as Mermaid instead of JSON")
	sessionCleanupCmd.Flags().Duration("older-than", 0, "Idle threshold (defaults to session.staleAfter)")
}

func openEngine(cmd *cobra.Command) (*stride.Engine, error) {
	cfg, err := cli.LoadConfig(cliOptions(cmd))
	if err != nil {
		return nil, err
	}
	return cli.CreateEngine(cfg, cli.CreateLogger(cfg), nil)
}
