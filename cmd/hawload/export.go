package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/exitcode"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/logging"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the reporting views to CSV files",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&cfg.OutDir, "out", "", "Output directory for report CSVs")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	pool := stagePool(ctx, log)
	defer pool.Close()
	if cfg.OutDir == "" {
		log.Error().Msg("--out or out_dir is required")
		os.Exit(exitcode.UsageError)
	}

	if err := report.ExportAll(ctx, pool, log, cfg.OutDir); err != nil {
		log.Error().Err(err).Msg("report export failed")
		os.Exit(exitcode.BuildError)
	}

	fmt.Printf("Reports written to %s\n", cfg.OutDir)
	return nil
}
