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

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the audit trail, newest first (requires the control token)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkControlToken(); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		c := client.NewClient(baseURL, controlToken)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		events, err := c.ListEvents(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No events recorded")
			return nil
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(events, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tACTOR\tINSTANCE\tDETAIL")
		for _, ev := range events {
			detail := "-"
			if ev.Detail != nil {
				detail = *ev.Detail
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ev.Timestamp.Format(time.RFC3339), ev.Action, ev.Actor, ev.InstanceName, detail)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events to fetch")
	eventsCmd.Flags().Bool("json", false, "Output as JSON")
}
