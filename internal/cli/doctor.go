package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fast-gateway-protocol/vercel/internal/client"
	"github.com/fast-gateway-protocol/vercel/internal/config"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Socket: %s, upstream: %s\n", cfg.Socket.Path, cfg.Vercel.BaseURL)

			if config.Token() == "" {
				fmt.Fprintf(out, "Credential: MISSING (%s is not set)\n", config.EnvToken)
			} else {
				fmt.Fprintln(out, "Credential: present")
			}

			if client.New(cfg.Socket.Path).Ping() {
				fmt.Fprintln(out, "Daemon: running")
			} else {
				fmt.Fprintln(out, "Daemon: not running")
			}
			return nil
		},
	}
}
