package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.AddCommand(scenarioListCmd, scenarioMatchCmd)
	scenarioCmd.PersistentFlags().String("company", "", "company code (defaults to company.code)")
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Inspect the scenario catalog",
}

var scenarioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scenarios in priority order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		company, _ := cmd.Flags().GetString("company")
		if company == "" {
			company = cfg.Company.Code
		}
		catalog, err := catalogSource(cfg).Load(context.Background(), company)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tPRIORITY\tACTIVE\tTITLE")
		for _, d := range catalog.All() {
			fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", d.Key, d.Priority, d.IsActive, d.Title)
		}
		return w.Flush()
	},
}

var scenarioMatchCmd = &cobra.Command{
	Use:   "match <text>",
	Short: "Show which scenarios the rule matcher picks for a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		company, _ := cmd.Flags().GetString("company")
		if company == "" {
			company = cfg.Company.Code
		}
		catalog, err := catalogSource(cfg).Load(context.Background(), company)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		matches := catalog.MatchMessage(args[0])
		if len(matches) == 0 {
			fmt.Fprintln(out, "No scenario matched; the model classifier would decide.")
			return nil
		}
		for i, d := range matches {
			fmt.Fprintf(out, "%d. %s (priority %d) %s\n", i+1, d.Key, d.Priority, d.Title)
		}
		return nil
	},
}
