package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"rentledger/config"
	"rentledger/database"
	"rentledger/models"
	"rentledger/services"
	"rentledger/utils"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import payment statements (CSV, XLSX, SpreadsheetML)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				return runImport(cmd, app.importer, args)
			})
		},
	}
}

// runImport импортирует файлы по очереди; сбой одного файла не останавливает остальные
func runImport(cmd *cobra.Command, importer *services.ImportService, paths []string) error {
	var errs []error
	for _, path := range paths {
		stats, err := importFile(cmd, importer, path)
		if stats != nil {
			printJSON(cmd.OutOrStdout(), stats)
		}

		var recomputeErr *services.RecomputeError
		switch {
		case err == nil:
		case errors.As(err, &recomputeErr):
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: payments recorded, arrears recompute failed: %v\n", path, recomputeErr.Err)
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func importFile(cmd *cobra.Command, importer *services.ImportService, path string) (*services.ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла: %w", err)
	}
	defer f.Close()
	return importer.ImportFile(cmd.Context(), filepath.Base(path), f)
}

type recomputeOptions struct {
	export string
	year   int
	level  string
}

func newRecomputeCmd() *cobra.Command {
	var opts recomputeOptions

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild yearly arrears snapshots from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				return runRecompute(cmd, app.arrears, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.export, "export", "", "Write the snapshots to this XLSX file after recompute")
	cmd.Flags().IntVar(&opts.year, "year", 0, "Export only this year")
	cmd.Flags().StringVar(&opts.level, "level", "", "Export only this pressure level (none, reminder, pressure)")
	return cmd
}

func runRecompute(cmd *cobra.Command, arrears *services.ArrearsService, opts recomputeOptions) error {
	result, err := arrears.Recompute(cmd.Context())
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), result)

	if opts.export == "" {
		return nil
	}
	f, err := os.Create(opts.export)
	if err != nil {
		return fmt.Errorf("ошибка создания файла выгрузки: %w", err)
	}
	defer f.Close()

	filter := services.SnapshotFilter{Year: opts.year, Level: models.PressureLevel(opts.level)}
	if err := arrears.ExportXLSX(cmd.Context(), f, filter); err != nil {
		return err
	}
	utils.LogInfo("Arrears exported to %s", opts.export)
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			// Для postgres явный запуск всегда идёт через SQL-миграции
			if cfg.DB.Driver == "postgres" {
				cfg.DB.Migrations = true
			}
			db, err := database.NewDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", cfg.DB.Driver)
			return nil
		},
	}
}

func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
