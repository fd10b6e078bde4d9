package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/ledgerclaw/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Ledgerclaw Setup Wizard")
		fmt.Fprintln(out, "Press Enter to accept the default value shown in brackets.")
		fmt.Fprintln(out)

		cfg.LLM.BaseURL = prompt(scanner, out, "LLM base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = prompt(scanner, out, "LLM API key", cfg.LLM.APIKey)
		cfg.LLM.Model = prompt(scanner, out, "LLM model name", cfg.LLM.Model)
		cfg.Company.Code = prompt(scanner, out, "Company code", cfg.Company.Code)
		cfg.Company.LocalCurrency = strings.ToUpper(prompt(scanner, out, "Local currency", cfg.Company.LocalCurrency))
		rate := prompt(scanner, out, "Default tax rate (%)", strconv.FormatFloat(cfg.Company.DefaultTaxRate, 'f', -1, 64))
		if v, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Company.DefaultTaxRate = v
		}
		cfg.Telegram.Token = prompt(scanner, out, "Telegram bot token (optional)", cfg.Telegram.Token)
		cfg.DatabaseURL = prompt(scanner, out, "Postgres URL (optional, files otherwise)", cfg.DatabaseURL)

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Configuration saved to", cfgPath)
		return nil
	},
}

// prompt reads one line; an empty answer keeps defaultVal.
func prompt(scanner *bufio.Scanner, out io.Writer, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return defaultVal
}
