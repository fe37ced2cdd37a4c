package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rentledger/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rentledger",
		Short:        "Rent payment ingestion and arrears reconciliation",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newImportCmd(), newRecomputeCmd(), newMigrateCmd())
	return root
}

// withApplication загружает конфигурацию, собирает приложение и закрывает его после fn
func withApplication(fn func(app *application) error) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the arrears worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				return app.serve(cmd.Context())
			})
		},
	}
}
