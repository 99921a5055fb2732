package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	sqlite "github.com/banshee-data/bcal/internal/lidar/storage/sqlite"
	"github.com/banshee-data/bcal/internal/monitoring"
)

func runImport(args []string, stderr io.Writer) error {
	fs := newFlagSet("import", stderr)
	dbPath := fs.String("db", "points.db", "Point database to create or extend")
	csvPath := fs.String("csv", "", "CSV file of fid,x,y,z[,classification] rows (required)")
	debug := fs.Bool("debug", false, "Enable diagnostic logging")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	setupLogging(stderr, *debug)

	if *csvPath == "" {
		fmt.Fprintln(stderr, "import: -csv is required")
		fs.Usage()
		return errUsage
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	store, err := sqlite.CreatePointStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ImportCSV(context.Background(), f)
	if err != nil {
		return fmt.Errorf("import %s: %w", *csvPath, err)
	}
	total, err := store.Count(context.Background())
	if err != nil {
		return err
	}
	monitoring.Logf("import complete: %d rows read, %d points in %s", n, total, *dbPath)
	return nil
}
