package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/ledgerclaw/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd)
	sessionShowCmd.Flags().Int("limit", 50, "number of most recent messages")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(loadConfig())
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		list, err := st.Sessions.List(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY\tMESSAGES\tDOCUMENTS\tUPDATED")
		for _, s := range list {
			count, err := st.Messages.Count(ctx, s.ID)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				s.ID, s.Key, count, len(s.Documents), s.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		st, err := openStores(loadConfig())
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		id := types.SessionID(args[0])
		sess, err := st.Sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		messages, err := st.Messages.Tail(ctx, id, limit)
		if err != nil {
			return fmt.Errorf("read messages: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session %s (%s)\n", sess.ID, sess.Key)
		if sess.ActiveDocumentSessionID != "" {
			fmt.Fprintf(out, "Active document: %s %s\n", sess.DocumentLabels[sess.ActiveDocumentSessionID], sess.ActiveDocumentSessionID)
		}
		for _, d := range sess.Documents {
			fmt.Fprintf(out, "  %s %s %s\n", sess.DocumentLabels[d.DocumentSessionID], d.FileID, d.FileName)
		}
		fmt.Fprintln(out)
		for _, m := range messages {
			status := ""
			if m.Payload != nil && m.Payload.Status != "" {
				status = " [" + m.Payload.Status + "]"
			}
			fmt.Fprintf(out, "%s %s%s: %s\n", m.At.Format("15:04:05"), m.Role, status, m.Content)
		}
		return nil
	},
}
