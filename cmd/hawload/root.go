package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/config"
	"github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/exitcode"
)

var cfg config.Config

var configFile string

var rootCmd = &cobra.Command{
	Use:   "hawload",
	Short: "Hospital analytics warehouse loader",
	Long:  "Stages raw hospital extracts (CSV or FHIR bundles) into Postgres and builds the star-schema analytics warehouse.",
}

func init() {
	// A .env alongside the binary may carry DATABASE_URL; absence is fine.
	_ = godotenv.Load()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&configFile, "config", "", "Optional YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitcode.UsageError)
	}
}
