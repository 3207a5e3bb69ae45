package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openwake/openwake/internal/compute"
	"github.com/openwake/openwake/internal/config"
	"github.com/openwake/openwake/internal/dns"
)

var ensureDNSCmd = &cobra.Command{
	Use:   "ensure-dns <hostname> <address>",
	Short: "Create or update the controller's DNS record in Designate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		ttl, _ := cmd.Flags().GetInt("ttl")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		provider, err := compute.NewProviderClient(cfg.OpenStack)
		if err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
		gateway, err := dns.NewDesignateGateway(provider, cfg.OpenStack.Region)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		outcome, err := gateway.EnsureRecord(ctx, args[0], args[1], ttl)
		if err != nil {
			return fmt.Errorf("failed to ensure DNS record: %w", err)
		}

		fmt.Printf("Record %s -> %s: %s\n", args[0], args[1], outcome)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ensureDNSCmd)
	ensureDNSCmd.Flags().String("config", "", "Path to the OpenWake config file (for OpenStack credentials)")
	ensureDNSCmd.Flags().Int("ttl", 300, "Record TTL in seconds")
}
