package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/familiar/internal/daemon/components"
	"github.com/harunnryd/familiar/internal/store"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect the conversation transcript",
	Long:  `List, show and reset persisted conversation transcripts. Fails while familiar is running, since the data directory is locked.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(w *store.Worker) error {
			sessions, err := w.ListSessions()
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				fmt.Fprintln(out, "\nRun 'familiar run' to start talking.")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(out, "- %s  %q  turns=%d  updated=%s\n", s.ID, s.Title, s.Turns, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "\nTotal: %d session(s)\n", len(sessions))
			return nil
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print the latest transcript entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := sessionArg(args)
		limit, _ := cmd.Flags().GetInt("limit")
		return withStore(cmd, func(w *store.Worker) error {
			entries, err := w.ReadTranscript(sessionID, limit)
			if err != nil {
				return fmt.Errorf("failed to read transcript: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Session '%s' is empty.\n", sessionID)
				return nil
			}
			printTranscript(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset [id]",
	Short: "Delete a session transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := sessionArg(args)
		return withStore(cmd, func(w *store.Worker) error {
			if err := w.ResetTranscript(sessionID); err != nil {
				return fmt.Errorf("failed to reset transcript: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Session '%s' reset successfully.\n", sessionID)
			return nil
		})
	},
}

func sessionArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return components.MainSessionID
}

func withStore(cmd *cobra.Command, fn func(w *store.Worker) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	w, err := store.NewWorker(loadedCfg.Store)
	if err != nil {
		return err
	}
	w.Start()
	defer w.Stop()
	return fn(w)
}

func printTranscript(out io.Writer, entries []store.TranscriptEntry) {
	for _, e := range entries {
		who := string(e.Role)
		if e.Origin == "self" && e.Role == store.RoleUser {
			who = "impulse"
		}
		fmt.Fprintf(out, "[%s] %s:", e.Timestamp.Format("15:04:05"), who)
		if e.Content != "" {
			fmt.Fprintf(out, " %s", e.Content)
		}
		fmt.Fprintln(out)
		for _, t := range e.Tools {
			switch {
			case t.Output != "" && t.IsError:
				fmt.Fprintf(out, "    %s ✗ %s\n", t.Name, t.Output)
			case t.Output != "":
				fmt.Fprintf(out, "    %s → %s\n", t.Name, t.Output)
			default:
				fmt.Fprintf(out, "    → %s\n", t.Name)
			}
		}
	}
}

func init() {
	sessionShowCmd.Flags().IntP("limit", "n", 20, "number of entries to show (0 for all)")
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
	rootCmd.AddCommand(sessionCmd)
}
