// Package cmd defines and implements the CLI commands for the staticpub
// executable.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/builder"
	"github.com/JakeFAU/staticpub/internal/report"
)

// errBuildFailed is returned when the report contains failed builds, so the
// process exits non-zero after the report has been printed.
var errBuildFailed = errors.New("build finished with failures")

func newBuildCmd() *cobra.Command {
	var (
		format string
		errs   bool
	)
	cmd := &cobra.Command{
		Use:   "build [url...]",
		Short: "Builds the site, or only the given URLs",
		Long: `Collects URLs from the configured producers, renders each page and
writes it to the content store. When URLs are given only those pages are
built; pass --errors to render the error pages as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var rep builder.Report
			if len(args) == 0 {
				rep, err = appInstance.Builder.BuildAll(ctx)
				if err != nil {
					return fmt.Errorf("build site: %w", err)
				}
				if errs && rep.ErrorPages == nil {
					pages, _ := appInstance.Builder.BuildErrorPages(ctx)
					rep.ErrorPages = &pages
				}
			} else {
				rep.StartedAt = appInstance.Clock().Now()
				rep.Builds = appInstance.Builder.BuildURLs(ctx, args)
				if errs {
					pages, _ := appInstance.Builder.BuildErrorPages(ctx)
					rep.ErrorPages = &pages
				}
				rep.FinishedAt = appInstance.Clock().Now()
			}
			if err := report.Write(cmd.OutOrStdout(), f, rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if _, _, _, failed := rep.Totals(); failed > 0 {
				appInstance.Logger().Warn("build finished with failures", zap.Int("failed", failed))
				return errBuildFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "report format: text, yaml or markdown")
	cmd.Flags().BoolVar(&errs, "errors", false, "also render the error pages")
	return cmd
}

func newCollectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "collect [producer...]",
		Short: "Lists the URLs the producers yield without building them",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			producers := make([]any, 0, len(args))
			for _, name := range args {
				producers = append(producers, name)
			}
			urls, err := appInstance.Collector.Collect(cmd.Context(), producers...)
			if err != nil {
				return fmt.Errorf("collect urls: %w", err)
			}
			return report.WriteURLs(cmd.OutOrStdout(), f, urls.Sorted())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, yaml or markdown")
	return cmd
}

func newErrorsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Renders and writes the error pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rep := builder.Report{StartedAt: appInstance.Clock().Now()}
			pages, buildErr := appInstance.Builder.BuildErrorPages(cmd.Context())
			rep.ErrorPages = &pages
			rep.FinishedAt = appInstance.Clock().Now()
			if err := report.Write(cmd.OutOrStdout(), f, rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if buildErr != nil {
				return fmt.Errorf("error pages: %w", buildErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "report format: text, yaml or markdown")
	return cmd
}
