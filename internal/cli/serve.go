package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board and run queue over a local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			// Nothing can answer a prompt on a server's stdin.
			svc, err := a.newServices(strings.NewReader(""), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer svc.close()

			// The server owns the repository's queue, so active runs left on
			// the board belong to a process that is gone.
			if err := svc.recoverStale(cmd.Context(), a.repo); err != nil {
				return err
			}
			svc.warnEnvironment(a.logger)

			server := a.newAPIServer(svc)
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(addr)
			}()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", a.repo, addr)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			a.logger.Info("Shutting down API server")
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}

// newAPIServer serves the board through the same store the queue writes to.
func (a *app) newAPIServer(svc *services) *httpapi.Server {
	return httpapi.NewServer(a.repo, svc.board, svc.queue, a.logger)
}
