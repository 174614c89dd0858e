package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fast-gateway-protocol/vercel/internal/client"
	"github.com/fast-gateway-protocol/vercel/internal/rpc"
)

// NewStatusCmd queries a running daemon's health over the socket.
func NewStatusCmd(opts *Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and upstream health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			c := client.New(cfg.Socket.Path)
			if !c.Ping() {
				return fmt.Errorf("daemon is not running (socket: %s)", cfg.Socket.Path)
			}

			resp, err := c.Call("health", nil)
			if err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("daemon unhealthy: %s: %s", resp.Error.Kind, resp.Error.Message)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(resp.Result)
			}

			data, err := json.Marshal(resp.Result)
			if err != nil {
				return err
			}
			var status rpc.HealthStatus
			if err := json.Unmarshal(data, &status); err != nil {
				return err
			}

			fmt.Fprintf(out, "Daemon:   running (%s)\n", cfg.Socket.Path)
			fmt.Fprintf(out, "Service:  %s %s\n", status.Service, status.Version)
			fmt.Fprintf(out, "Upstream: %s\n", status.Upstream)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw health payload as JSON")
	return cmd
}
