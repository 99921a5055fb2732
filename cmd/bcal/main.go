// Command bcal tiles a point cloud for parallel ground classification.
//
// Usage:
//
//	bcal import -db points.db -csv points.csv
//	bcal filter -db points.db -jobs 4 -spacing 1.0
//	bcal filter -db points.db -resume <run-id>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
	"github.com/banshee-data/bcal/internal/lidar/l3bins"
	"github.com/banshee-data/bcal/internal/lidar/pipeline"
	"github.com/banshee-data/bcal/internal/monitoring"
	"github.com/banshee-data/bcal/internal/version"
)

// Exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitTileFailure = 2
)

// errUsage marks command-line mistakes that already printed usage.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one bcal command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitFatal
	}

	command, rest := args[0], args[1:]
	switch command {
	case "import":
		return exitCode(stderr, runImport(rest, stderr))
	case "filter":
		return runFilter(rest, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version.String())
		return exitOK
	case "help", "-h", "-help", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return exitFatal
	}
}

func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return exitOK
	}
	if !errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "bcal: %v\n", err)
	}
	return exitFatal
}

// setupLogging points the process logger and the per-package streams at
// stderr. Ops messages are always on; diag and trace only with debug.
func setupLogging(stderr io.Writer, debug bool) {
	monitoring.SetLogger(log.New(stderr, "bcal: ", log.LstdFlags).Printf)

	var diag, trace io.Writer
	if debug {
		diag, trace = stderr, stderr
	}
	l2tiles.SetLogWriters(stderr, diag, trace)
	l3bins.SetLogWriters(trace)
	pipeline.SetLogWriters(stderr, diag, trace)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `bcal - tile a point cloud for parallel ground classification

Usage: bcal <command> [options]

Commands:
  import     Load fid,x,y,z[,classification] CSV rows into a point database
  filter     Partition the point database into tiles and bin each tile
  version    Show bcal version
  help       Show this help message

Run "bcal <command> -h" for command options.
`)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
