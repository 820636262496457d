package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/api"
	"github.com/JakeFAU/staticpub/internal/site"
)

func newPreviewCmd() *cobra.Command {
	var (
		addr string
		list bool
	)
	cmd := &cobra.Command{
		Use:   "preview [url...]",
		Short: "Serves rendered pages from memory without writing them",
		Long: `Reads the given URLs (or everything the producers yield) plus the error
pages and serves the results on --addr, so a build can be inspected before
it is published. With --list the mounted paths are printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := appInstance.Logger()

			urls := args
			if len(urls) == 0 {
				set, err := appInstance.Collector.Collect(ctx)
				if err != nil {
					return fmt.Errorf("collect urls: %w", err)
				}
				urls = set.Sorted()
			}

			// Pages are read one at a time so a broken URL only drops itself.
			var results []site.ReadResult
			for _, u := range urls {
				pages, err := appInstance.Reader.ReadPage(ctx, u)
				if err != nil {
					logger.Warn("preview read failed", zap.String("url", u), zap.Error(err))
					continue
				}
				results = append(results, pages...)
			}
			for res, err := range appInstance.ErrorReader.Read(ctx) {
				if err != nil {
					logger.Warn("preview error pages stopped", zap.Error(err))
					break
				}
				results = append(results, res)
			}

			r := chi.NewRouter()
			mounted := api.MountResults(r, results)
			if list {
				for _, p := range mounted {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			}
			return servePreview(ctx, addr, r, logger, len(mounted))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "address to serve the preview on")
	cmd.Flags().BoolVar(&list, "list", false, "print the mounted paths and exit")
	return cmd
}

func servePreview(ctx context.Context, addr string, h http.Handler, logger *zap.Logger, paths int) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("preview server started", zap.String("addr", addr), zap.Int("paths", paths))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("preview server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
