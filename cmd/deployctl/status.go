package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/offerlab/deployman/internal/shell/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the managed deployment record",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.DeploymentResponse
		code, err := doJSON(http.MethodGet, "/api/v1/deployment", nil, &resp)
		if code == http.StatusNotFound {
			fmt.Println("No deployment configured.")
			return nil
		}
		if err != nil {
			return err
		}

		printDeployment(os.Stdout, resp)
		return nil
	},
}
