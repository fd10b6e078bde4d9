package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(clarifyCmd)
	clarifyCmd.AddCommand(clarifyListCmd)
}

var clarifyCmd = &cobra.Command{
	Use:   "clarify",
	Short: "Inspect clarification questions",
}

var clarifyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		open, err := openQuestions(context.Background(), loadConfig())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(open) == 0 {
			fmt.Fprintln(out, "No open questions.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "QUESTION\tSESSION\tDOCUMENT\tFIELD\tASKED\tTEXT")
		for _, q := range open {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				q.QuestionID, q.SessionID, q.DocumentLabel, q.MissingField,
				q.CreatedAt.Format("2006-01-02 15:04"), q.Question)
		}
		return w.Flush()
	},
}
