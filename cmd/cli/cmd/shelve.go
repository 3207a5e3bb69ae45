package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openwake/openwake/pkg/client"
)

var shelveCmd = &cobra.Command{
	Use:   "shelve <target>",
	Short: "Start the shelve workflow for a target (requires the control token)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkControlToken(); err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		c := client.NewClient(baseURL, controlToken)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		rec, err := c.Shelve(ctx, args[0], reason)
		if err != nil {
			return fmt.Errorf("failed to shelve target: %w", err)
		}

		fmt.Printf("Shelve requested: %s is %s (%s)\n", args[0], rec.State, rec.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shelveCmd)
	shelveCmd.Flags().String("reason", "cli", "Reason recorded in the audit trail")
}
