package s3store

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

// tractRow mirrors the columnar schema of ref/nri/nri_tracts.parquet.
type tractRow struct {
	GeoID       string  `parquet:"geoid"`
	State       string  `parquet:"state"`
	County      string  `parquet:"county"`
	EALTotal    float64 `parquet:"eal_total"`
	CentroidLat float64 `parquet:"centroid_lat"`
	CentroidLon float64 `parquet:"centroid_lon"`
}

// bookRow mirrors ref/book/book_exposure.parquet.
type bookRow struct {
	GeoID   string  `parquet:"geoid"`
	TIVHome float64 `parquet:"tiv_home"`
}

// seriesRow is one row of the published by_tract.parquet output.
type seriesRow struct {
	GeoID   string    `parquet:"geoid"`
	Dt      time.Time `parquet:"dt,timestamp(millisecond)"`
	ELTotal float64   `parquet:"el_total"`
}

func decodeTracts(data []byte) ([]domain.ExposureUnit, error) {
	rows, err := parquet.Read[tractRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode tract table: %w", err)
	}

	units := make([]domain.ExposureUnit, 0, len(rows))
	for _, r := range rows {
		units = append(units, domain.ExposureUnit{
			GeoID:       r.GeoID,
			State:       r.State,
			County:      r.County,
			CentroidLat: r.CentroidLat,
			CentroidLon: r.CentroidLon,
			EALTotal:    domain.NumericSample(r.EALTotal),
		})
	}
	return units, nil
}

func decodeBook(data []byte) (map[string]domain.Sample, error) {
	rows, err := parquet.Read[bookRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode book table: %w", err)
	}

	book := make(map[string]domain.Sample, len(rows))
	for _, r := range rows {
		book[r.GeoID] = domain.NumericSample(r.TIVHome)
	}
	return book, nil
}

// EncodeTracts writes exposure units in the tract-table schema. Exported for
// cmd/genmock, which builds local fixtures in the production format.
func EncodeTracts(w io.Writer, units []domain.ExposureUnit) error {
	rows := make([]tractRow, 0, len(units))
	for _, u := range units {
		rows = append(rows, tractRow{
			GeoID:       u.GeoID,
			State:       u.State,
			County:      u.County,
			EALTotal:    u.EALTotal.Value,
			CentroidLat: u.CentroidLat,
			CentroidLon: u.CentroidLon,
		})
	}
	if err := parquet.Write(w, rows); err != nil {
		return fmt.Errorf("encode tract table: %w", err)
	}
	return nil
}

// EncodeBook writes book entries in the book-table schema.
func EncodeBook(w io.Writer, entries []domain.BookEntry) error {
	rows := make([]bookRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, bookRow{GeoID: e.GeoID, TIVHome: e.TIVHome})
	}
	if err := parquet.Write(w, rows); err != nil {
		return fmt.Errorf("encode book table: %w", err)
	}
	return nil
}

// EncodeTractSeries writes the summed (geoid, timestamp) loss rows as the
// columnar by_tract output.
func EncodeTractSeries(w io.Writer, rows []domain.LossRow) error {
	out := make([]seriesRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, seriesRow{GeoID: r.GeoID, Dt: r.Dt, ELTotal: r.ExpectedLoss})
	}
	if err := parquet.Write(w, out); err != nil {
		return fmt.Errorf("encode tract series: %w", err)
	}
	return nil
}
