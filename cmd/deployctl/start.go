package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/offerlab/deployman/internal/shell/api"
)

var (
	startType   string
	startParams []string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Submit the deployment through the admission pipeline",
	Long: `start sends the deployment definition to the server, which refreshes the
stored record, checks whether a new build is admissible, and submits it to
the job engine. The resulting record is printed along with any errors the
pipeline collected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(startParams)
		if err != nil {
			return err
		}

		req := api.DeploymentRequest{
			DeploymentType: startType,
			Parameters:     params,
		}

		var resp api.StartDeploymentResponse
		if _, err := doJSON(http.MethodPost, "/api/v1/deployment/start", req, &resp); err != nil {
			return err
		}

		printDeployment(os.Stdout, resp.Deployment)
		if len(resp.Errors) > 0 {
			fmt.Println("Errors:")
			for _, e := range resp.Errors {
				fmt.Printf("  - %s\n", e)
			}
		}
		return nil
	},
}

func init() {
	startCmd.Flags().StringVar(&startType, "type", "", "Deployment type (job template name)")
	startCmd.Flags().StringArrayVar(&startParams, "param", nil, "Submission parameter as key=value (repeatable)")
	_ = startCmd.MarkFlagRequired("type")
}
