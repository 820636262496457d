package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/staticpub/internal/config"
)

var errCheckFailed = errors.New("configuration check found errors")

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Checks the configuration for problems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			issues := appInstance.Issues()
			out := cmd.OutOrStdout()
			for _, issue := range issues {
				fmt.Fprintln(out, issue.String())
			}
			switch len(issues) {
			case 0:
				fmt.Fprintln(out, "System check identified no issues.")
			case 1:
				fmt.Fprintln(out, "System check identified 1 issue.")
			default:
				fmt.Fprintf(out, "System check identified %d issues.\n", len(issues))
			}
			if config.HasErrors(issues) {
				return errCheckFailed
			}
			return nil
		},
	}
}
