package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/db"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/etl"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/exitcode"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/logging"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Validate staged data and rebuild the warehouse",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&cfg.Source, "source", "", "Staging source: csv or fhir (default csv)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			log.Error().Err(err).Msg("config file failed")
			os.Exit(exitcode.UsageError)
		}
	}
	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	summary, err := etl.Run(ctx, pool, log, &cfg)
	if err != nil {
		var perr *etl.PipelineError
		if errors.As(err, &perr) {
			log.Error().Err(perr.Err).Str("phase", perr.Phase).Msg("build failed")
			switch perr.Phase {
			case "config":
				os.Exit(exitcode.UsageError)
			case "validate":
				os.Exit(exitcode.ValidationError)
			default:
				os.Exit(exitcode.BuildError)
			}
		}
		log.Error().Err(err).Msg("build failed")
		os.Exit(exitcode.BuildError)
	}

	fmt.Printf("Build complete (run %d): %d encounters → %d fact rows, %d patients, %d dates (%.1fs)\n",
		summary.RunID, summary.Encounters, summary.FactRows,
		summary.DimPatientRows, summary.DimTimeRows, summary.DurationTotal.Seconds())
	return nil
}
