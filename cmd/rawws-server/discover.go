package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/rawws/internal/discovery"
	"github.com/muurk/rawws/internal/ui"
)

func newDiscoverCmd() *cobra.Command {
	var (
		timeout  time.Duration
		instance string
		plain    bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find rawws servers on the local network",
		Long: `Browse for servers advertised with 'serve --advertise' using mDNS/DNS-SD
(service type ` + discovery.ServiceType + `).`,
		Example: `  # Browse for 5 seconds
  rawws-server discover

  # Wait for one instance
  rawws-server discover --instance buildbox --timeout 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			scanner := discovery.NewScanner()
			scanner.Timeout = timeout

			var scan ui.ScanFunc = scanner.Scan
			if instance != "" {
				scan = func(ctx context.Context) ([]*discovery.Service, error) {
					svc, err := scanner.Find(ctx, instance)
					if err != nil {
						return nil, err
					}
					return []*discovery.Service{svc}, nil
				}
			}

			var (
				services []*discovery.Service
				err      error
			)
			if plain || !interactive() {
				services, err = scan(cmd.Context())
			} else {
				services, err = ui.RunScan(cmd.Context(), cmd.InOrStdin(), out, timeout, scan)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.NewFailureResult("Discovery failed", err,
					"Multicast DNS needs UDP port 5353 open on this host",
					"Servers must be started with --advertise",
					"Try a longer --timeout on busy networks",
				).Render())
				return err
			}

			if len(services) == 0 {
				fmt.Fprintln(out, ui.NewWarningResult("No servers found",
					ui.Field{Key: "Service", Value: discovery.ServiceType},
					ui.Field{Key: "Timeout", Value: timeout.String()},
				).Render())
				return nil
			}

			fmt.Fprintln(out, ui.RenderServices(services, ui.GetTerminalWidth()))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout, "How long to browse")
	cmd.Flags().StringVar(&instance, "instance", "", "Stop at the first server with this instance name")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print results without the interactive spinner")
	return cmd
}
