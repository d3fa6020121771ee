// Package report dumps the warehouse reporting views to CSV files.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// reports maps output file names to the view each one exports.
var reports = []struct {
	file string
	view string
}{
	{"encounters_by_department_month.csv", "vw_encounters_by_department_month"},
	{"avg_los_by_encounter_type.csv", "vw_avg_los_by_encounter_type"},
}

// ExportAll writes every reporting view into outDir, one CSV per view.
func ExportAll(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, r := range reports {
		n, err := exportView(ctx, pool, r.view, filepath.Join(outDir, r.file))
		if err != nil {
			return fmt.Errorf("export %s: %w", r.view, err)
		}
		log.Info().Str("file", r.file).Int("rows", n).Msg("report written")
	}
	return nil
}

func exportView(ctx context.Context, pool *pgxpool.Pool, view, path string) (int, error) {
	rows, err := pool.Query(ctx, "SELECT * FROM "+view)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	descs := rows.FieldDescriptions()
	header := make([]string, len(descs))
	for i, d := range descs {
		header[i] = string(d.Name)
	}
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	count := 0
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return 0, fmt.Errorf("read row: %w", err)
		}
		rec := make([]string, len(vals))
		for i, v := range vals {
			if v == nil {
				rec[i] = ""
				continue
			}
			rec[i] = fmt.Sprint(v)
		}
		if err := w.Write(rec); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	return count, f.Close()
}
