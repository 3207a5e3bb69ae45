package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openwake/openwake/pkg/client"
)

var wakeCmd = &cobra.Command{
	Use:   "wake <target>",
	Short: "Start the unshelve workflow for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		c := client.NewClient(baseURL, controlToken)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		rec, err := c.Unshelve(ctx, args[0], reason)
		if err != nil {
			return fmt.Errorf("failed to wake target: %w", err)
		}

		fmt.Printf("Wake requested: %s is %s (%s)\n", args[0], rec.State, rec.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(wakeCmd)
	wakeCmd.Flags().String("reason", "cli", "Reason recorded in the audit trail")
}
