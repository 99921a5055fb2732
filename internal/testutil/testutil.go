// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertErrorIs fails the test if err does not wrap target.
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// Lattice returns (n+1)^2 records on the integer grid 0..n, with feature
// ids from 1 in row-major order and Z = x + y.
func Lattice(n int) []l1points.Record {
	recs := make([]l1points.Record, 0, (n+1)*(n+1))
	fid := int64(1)
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			recs = append(recs, l1points.Record{
				FeatureID: fid,
				X:         float64(x),
				Y:         float64(y),
				Z:         float64(x + y),
			})
			fid++
		}
	}
	return recs
}

// WriteCSV writes recs as a fid,x,y,z,classification CSV with a header row
// into dir and returns its path.
func WriteCSV(t *testing.T, dir string, recs []l1points.Record) string {
	t.Helper()
	path := filepath.Join(dir, "points.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"fid", "x", "y", "z", "classification"})
	for _, r := range recs {
		_ = w.Write([]string{
			strconv.FormatInt(r.FeatureID, 10),
			strconv.FormatFloat(r.X, 'g', -1, 64),
			strconv.FormatFloat(r.Y, 'g', -1, 64),
			strconv.FormatFloat(r.Z, 'g', -1, 64),
			strconv.Itoa(int(r.Classification)),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}
