// deployctl is the operator CLI for a running deployman server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string

	rootCmd = &cobra.Command{
		Use:   "deployctl",
		Short: "Operator CLI for the deployman service",
		Long: `deployctl talks to a running deployman server: submit the deployment
through the admission pipeline and inspect the managed record.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Base URL of the deployman server")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
}
