package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stopPidFile string
	stopTimeout time.Duration
	stopForce   bool
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the depositd service",
	Long: `Stop a depositd service running in daemon mode.

The command sends SIGTERM to the process recorded in the PID file and waits
for it to exit. Use --force to send SIGKILL if the process does not stop
within the timeout.

Examples:
  # Stop the service
  depositd stop

  # Stop with a custom PID file
  depositd stop --pid-file /run/depositd.pid

  # Kill if graceful shutdown hangs
  depositd stop --force`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/depositd/depositd.pid)")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "How long to wait for graceful shutdown")
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "Send SIGKILL if the process does not stop in time")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("depositd does not appear to be running (no PID file at %s)", pidPath)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return fmt.Errorf("invalid PID file %s: %w", pidPath, err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.Signal(0)); err != nil {
		// Stale PID file
		_ = os.Remove(pidPath)
		return fmt.Errorf("depositd is not running (stale PID file removed)")
	}

	fmt.Printf("Stopping depositd (PID %d)...\n", pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process: %w", err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			fmt.Println("depositd stopped")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	if !stopForce {
		return fmt.Errorf("depositd did not stop within %s (use --force to kill)", stopTimeout)
	}

	fmt.Println("Graceful shutdown timed out, sending SIGKILL")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	_ = os.Remove(pidPath)
	fmt.Println("depositd killed")
	return nil
}
