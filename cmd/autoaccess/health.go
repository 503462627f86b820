package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CanhCl92/AutoAccess/internal/grpcclient"
	"github.com/CanhCl92/AutoAccess/internal/rpcserver"
)

var healthOpts struct {
	addr    string
	service string
	wait    time.Duration
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query the gRPC health endpoint of a running service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		addr := healthOpts.addr
		if addr == "" {
			addr = cfg.GRPCAddr
		}
		if addr != "" && addr[0] == ':' {
			addr = "localhost" + addr
		}

		client, err := grpcclient.New(addr)
		if err != nil {
			return err
		}
		defer client.Close()

		if healthOpts.wait > 0 {
			ctx, cancel := context.WithTimeout(cmd.Context(), healthOpts.wait)
			defer cancel()
			if err := client.WaitServing(ctx, healthOpts.service); err != nil {
				return err
			}
		}
		status, err := client.Check(cmd.Context(), healthOpts.service)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status.String())
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthOpts.addr, "addr", "", "gRPC address (defaults to GRPC_ADDR)")
	healthCmd.Flags().StringVar(&healthOpts.service, "service", rpcserver.ServiceName, "service name; empty checks the whole server")
	healthCmd.Flags().DurationVar(&healthOpts.wait, "wait", 0, "wait up to this long for SERVING")
	rootCmd.AddCommand(healthCmd)
}
