package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/config"
	"github.com/JakeFAU/staticpub/internal/logging"
	"github.com/JakeFAU/staticpub/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can swap in
// an App with an in-process renderer and memory storage.
var newApp = func(ctx context.Context, cfg config.Config) (*server.App, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "staticpub",
		Short: "Publishes a dynamic site as static files.",
		Long: `staticpub renders every page of a running site, follows redirects,
renders the error pages and writes the results to a content store
(local directory, memory, bolt or Google Cloud Storage).

URLs come from producers: sitemaps, feeds, a spider, static lists and
model tables in Postgres or SQLite.`,
		SilenceUsage: true,

		// Runs after flags are parsed but before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := cfgFile
			if path == "" {
				found, err := config.FindFile()
				if err != nil {
					return err
				}
				path = found
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if path != "" {
				appInstance.Logger().Debug("config loaded", zap.String("path", path))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(*server.App); ok && appInstance != nil {
				return appInstance.Close(cmd.Context())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./"+config.FileName+" or $XDG_CONFIG_HOME/staticpub/config.yaml)")

	cmd.AddCommand(
		newBuildCmd(),
		newCollectCmd(),
		newErrorsCmd(),
		newServeCmd(),
		newCheckCmd(),
		newPreviewCmd(),
		newVersionCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*server.App, error) {
	appInstance, ok := ctx.Value(appKey).(*server.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	logger, err := logging.New(logging.Config{Development: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
