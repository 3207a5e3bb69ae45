package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	baseURL      string
	controlToken string
)

var rootCmd = &cobra.Command{
	Use:   "owk",
	Short: "OpenWake CLI - Wake and shelve cloud instances from the command line",
	Long: `OpenWake CLI (owk) is a command-line tool for the OpenWake controller.

It provides commands to inspect target status, wake shelved instances,
shelve running ones, read the audit trail, and maintain the controller's
DNS record.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("OPENWAKE_API_URL", "http://localhost:8080"), "OpenWake API base URL")
	rootCmd.PersistentFlags().StringVar(&controlToken, "token", os.Getenv("OPENWAKE_CONTROL_TOKEN"), "OpenWake control token")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func checkControlToken() error {
	if controlToken == "" {
		return fmt.Errorf("control token is required. Set OPENWAKE_CONTROL_TOKEN environment variable or use --token flag")
	}
	return nil
}
