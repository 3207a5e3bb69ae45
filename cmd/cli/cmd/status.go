package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openwake/openwake/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status [target]",
	Short: "Show target status (all targets, or one refreshed from the provider)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, controlToken)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		jsonOutput, _ := cmd.Flags().GetBool("json")

		if len(args) == 1 {
			target, err := c.GetTarget(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get target: %w", err)
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(target, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("%s (%s)\n", target.Label, target.ID)
			fmt.Printf("  state:      %s\n", target.Status.State)
			fmt.Printf("  message:    %s\n", target.Status.Message)
			fmt.Printf("  running:    %v\n", target.Status.Running)
			fmt.Printf("  http_ready: %v\n", target.Status.HTTPReady)
			if target.Status.URL != nil {
				fmt.Printf("  url:        %s\n", *target.Status.URL)
			}
			if target.Status.Error != nil {
				fmt.Printf("  error:      %s\n", *target.Status.Error)
			}
			return nil
		}

		targets, err := c.ListTargets(ctx)
		if err != nil {
			return fmt.Errorf("failed to list targets: %w", err)
		}
		if len(targets) == 0 {
			fmt.Println("No targets configured")
			return nil
		}
		if jsonOutput {
			data, _ := json.MarshalIndent(targets, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tSTATE\tRUNNING\tURL")
		for _, target := range targets {
			url := "-"
			if target.Status.URL != nil {
				url = *target.Status.URL
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
				target.ID, target.Label, target.Status.State, target.Status.Running, url)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
