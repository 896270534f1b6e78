// Command genmock writes a frozen mock run to a local directory in the
// production bucket layout: raw forecast documents for a small Gulf-coast
// grid plus matching tract and book reference tables. The fixtures feed the
// test suites and local development against MinIO, and they are fully
// deterministic: a fixed clock supplies the run id and a fixed seed drives
// the synthetic hazard values.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cat-loss-etl/internal/adapter/s3store"
	"github.com/couchcryptid/cat-loss-etl/internal/book"
	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

const (
	forecastSteps = 40 // 5 days of 3-hour steps
	stepSeconds   = 3 * 60 * 60
	targetTIV     = 2.0e9
	seed          = 42
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the mock run")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	clock := clockwork.NewFakeClockAt(time.Date(2025, time.September, 4, 23, 18, 43, 0, time.UTC))
	runID := clock.Now().UTC().Format("20060102T150405Z")
	forecastStart := clock.Now().UTC().Truncate(3 * time.Hour)

	cells := gulfGrid()
	rng := rand.New(rand.NewSource(seed))

	rawDir := filepath.Join(*out, "raw", "owm_forecast", "run_dt="+runID)
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return err
	}

	for _, cell := range cells {
		doc := forecastDocument(forecastStart, rng)
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(rawDir, cell.DocumentName()), data, 0o644); err != nil {
			return err
		}
	}
	log.Printf("wrote %d forecast documents for run %s", len(cells), runID)

	units := mockTracts()
	if err := writeParquet(filepath.Join(*out, "ref", "nri", "nri_tracts.parquet"), func(f *os.File) error {
		return s3store.EncodeTracts(f, units)
	}); err != nil {
		return err
	}

	entries := book.Generate(units, targetTIV, seed)
	if err := writeParquet(filepath.Join(*out, "ref", "book", "book_exposure.parquet"), func(f *os.File) error {
		return s3store.EncodeBook(f, entries)
	}); err != nil {
		return err
	}
	log.Printf("wrote reference tables: %d tracts", len(units))

	return nil
}

// gulfGrid is a 3x3 grid over the Houston area at half-degree spacing.
func gulfGrid() []domain.Cell {
	var cells []domain.Cell
	for _, lat := range []float64{29.25, 29.75, 30.25} {
		for _, lon := range []float64{-95.85, -95.35, -94.85} {
			cells = append(cells, domain.Cell{Lat: lat, Lon: lon})
		}
	}
	return cells
}

// forecastDocument builds one cell's raw document: calm early steps, a storm
// peak in the middle, tapering off. Values jitter per cell via rng.
func forecastDocument(start time.Time, rng *rand.Rand) map[string]any {
	entries := make([]map[string]any, 0, forecastSteps)
	for i := 0; i < forecastSteps; i++ {
		dt := start.Unix() + int64(i*stepSeconds)

		// Ramp toward a mid-forecast peak.
		peak := 1.0 - abs(float64(i)-float64(forecastSteps)/2)/(float64(forecastSteps)/2)
		wind := 5 + 35*peak + rng.Float64()*3
		rain := 20 * peak * rng.Float64()

		entries = append(entries, map[string]any{
			"dt":   dt,
			"wind": map[string]any{"speed": round1(wind)},
			"rain": map[string]any{"3h": round1(rain)},
		})
	}
	return map[string]any{"list": entries}
}

// mockTracts covers four Houston-area counties with two tracts each.
func mockTracts() []domain.ExposureUnit {
	type seedTract struct {
		geoid  string
		county string
		lat    float64
		lon    float64
		eal    float64
	}
	seeds := []seedTract{
		{"48201100000", "Harris", 29.78, -95.39, 900000},
		{"48201200000", "Harris", 29.70, -95.30, 750000},
		{"48039610000", "Brazoria", 29.20, -95.45, 400000},
		{"48039620000", "Brazoria", 29.30, -95.60, 350000},
		{"48167720000", "Galveston", 29.30, -94.90, 650000},
		{"48167730000", "Galveston", 29.38, -94.95, 500000},
		{"48339690000", "Montgomery", 30.30, -95.50, 250000},
		{"48339695000", "Montgomery", 30.25, -95.40, 200000},
	}

	units := make([]domain.ExposureUnit, 0, len(seeds))
	for _, s := range seeds {
		units = append(units, domain.ExposureUnit{
			GeoID:       s.geoid,
			State:       "TX",
			County:      s.county,
			CentroidLat: s.lat,
			CentroidLon: s.lon,
			EALTotal:    domain.ParsedSample(s.eal),
		})
	}
	return units
}

func writeParquet(path string, encode func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func round1(v float64) float64 {
	return float64(int(v*10)) / 10
}
