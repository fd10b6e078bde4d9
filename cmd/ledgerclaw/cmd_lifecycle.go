package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

const pidFileName = "ledgerclaw.pid"

var errNotRunning = errors.New("no running daemon")

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

// findDaemon returns the serving process recorded under dataDir. A stale
// PID file, one whose process is gone, counts as not running.
func findDaemon(dataDir string) (*os.Process, error) {
	data, err := os.ReadFile(pidPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w (PID file not found)", errNotRunning)
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("%w (process %d not found)", errNotRunning, pid)
	}
	return proc, nil
}

// signalCommand builds a command that delivers sig to the daemon.
func signalCommand(use, short string, sig syscall.Signal, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := findDaemon(loadConfig().DataDir)
			if err != nil {
				return err
			}
			if err := proc.Signal(sig); err != nil {
				return fmt.Errorf("send %v: %w", sig, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %v to daemon (PID %d)%s.\n", sig, proc.Pid, done)
			return nil
		},
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := findDaemon(loadConfig().DataDir)
		switch {
		case errors.Is(err, errNotRunning):
			fmt.Fprintln(cmd.OutOrStdout(), "ledgerclaw is not running")
			return nil
		case err != nil:
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ledgerclaw is running (PID %d)\n", proc.Pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(
		statusCmd,
		signalCommand("stop", "Stop the running daemon", syscall.SIGTERM, ""),
		signalCommand("restart", "Restart the running daemon", syscall.SIGHUP, " for restart"),
	)
}
