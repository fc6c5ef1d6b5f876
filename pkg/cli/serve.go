package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pocketumami/pocketumami/pkg/serve"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local dashboard",
	Long: `Serves a small HTTP API and a websocket feed of live visitor counts for
the active instance. Stops cleanly on SIGINT or SIGTERM.`,
	RunE: withApp(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(a *app, cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = a.cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve.New(addr, a.data, a.loc, a.log).Run(ctx)
}
