package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fast-gateway-protocol/vercel/internal/daemon"
)

const stopWait = 10 * time.Second

// NewStopCmd signals a running daemon via its pid file and waits for the
// socket to disappear.
func NewStopCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			pidPath := daemon.PidFilePath(cfg.Socket.Path)
			data, err := os.ReadFile(pidPath)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
					return nil
				}
				return fmt.Errorf("read pid file: %w", err)
			}

			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("pid file %s is corrupt: %w", pidPath, err)
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				if err == syscall.ESRCH {
					// Process is gone; clear the leftovers.
					os.Remove(pidPath)
					os.Remove(cfg.Socket.Path)
					fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running (cleaned up stale files)")
					return nil
				}
				return fmt.Errorf("signal daemon (pid %d): %w", pid, err)
			}

			deadline := time.Now().Add(stopWait)
			for time.Now().Before(deadline) {
				if _, err := os.Stat(cfg.Socket.Path); os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("daemon (pid %d) did not stop within %s", pid, stopWait)
		},
	}
}
