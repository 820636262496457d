package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP build service",
		Long: `Starts the build API and a pool of workers. Builds are submitted with
POST /v1/builds/ and run in the background; their status and results are
available under /v1/builds/{job_id}.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.NewService().Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run service: %w", err)
			}
			return nil
		},
	}
}
