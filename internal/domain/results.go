package domain

import (
	"log/slog"
	"time"
)

// Published result documents. Field order is fixed because runs must be
// byte-identical when reprocessed from identical inputs.

// BandsDocument is the per-tract percentile bands object for one run.
type BandsDocument struct {
	Run   string      `json:"run"`
	Bands []BandEntry `json:"bands"`
}

// BandEntry is one tract's band in the published document.
type BandEntry struct {
	GeoID string  `json:"geoid"`
	State string  `json:"state"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
}

// TopDocument is the ranked top-loss list for one run.
type TopDocument struct {
	Run string             `json:"run"`
	Top []TopDocumentEntry `json:"top"`
}

// TopDocumentEntry is one ranked tract.
type TopDocumentEntry struct {
	GeoID      string  `json:"geoid"`
	State      string  `json:"state"`
	County     string  `json:"county"`
	ELTotalSum float64 `json:"el_total_sum"`
}

// CountiesDocument is the full county rollup list for one run.
type CountiesDocument struct {
	Run      string        `json:"run"`
	Counties []CountyEntry `json:"counties"`
}

// CountyEntry is one county's rollup in the published document.
type CountyEntry struct {
	FIPS       string  `json:"fips"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	P50        float64 `json:"p50"`
	P90        float64 `json:"p90"`
	ELTotalSum float64 `json:"el_total_sum"`
}

// CountySeriesDocument is one county's loss time series, published as its
// own object so clients can fetch a single county cheaply.
type CountySeriesDocument struct {
	FIPS   string        `json:"fips"`
	Series []SeriesEntry `json:"series"`
}

// SeriesEntry is one timestep in a published time series.
type SeriesEntry struct {
	Dt      string  `json:"dt"` // RFC 3339 UTC
	ELTotal float64 `json:"el_total"`
}

// ResultSet is everything one run publishes, assembled before any write so a
// failed run publishes nothing.
type ResultSet struct {
	Run          string
	TractSeries  []LossRow // summed per (geoid, timestamp)
	Bands        BandsDocument
	Top          TopDocument
	Counties     CountiesDocument
	CountySeries []CountySeriesDocument
}

// RunSummary is the payload of the optional run-completion notification.
type RunSummary struct {
	Run         string    `json:"run"`
	Tracts      int       `json:"tracts"`
	Counties    int       `json:"counties"`
	LossRows    int       `json:"loss_rows"`
	TotalLoss   float64   `json:"total_loss"`
	PublishedAt time.Time `json:"published_at"`
}

// BuildResultSet derives every published document from the summed tract-time
// series. agg must be the output of [SumByTractTime]; given identical agg and
// units, the result marshals to identical bytes.
func BuildResultSet(run string, agg []LossRow, units map[string]ExposureUnit, logger *slog.Logger) *ResultSet {
	bands := TractBands(agg, units)
	bandEntries := make([]BandEntry, 0, len(bands))
	for _, b := range bands {
		bandEntries = append(bandEntries, BandEntry{GeoID: b.GeoID, State: b.State, P50: b.P50, P90: b.P90})
	}

	top := TopTracts(agg, units, TopListLimit)
	topEntries := make([]TopDocumentEntry, 0, len(top))
	for _, t := range top {
		topEntries = append(topEntries, TopDocumentEntry{
			GeoID:      t.GeoID,
			State:      t.State,
			County:     t.County,
			ELTotalSum: t.TotalLoss,
		})
	}

	counties, countySeries := CountyRollup(agg, units, logger)
	countyEntries := make([]CountyEntry, 0, len(counties))
	for _, c := range counties {
		countyEntries = append(countyEntries, CountyEntry{
			FIPS:       c.FIPS,
			Name:       c.Name,
			State:      c.State,
			P50:        c.P50,
			P90:        c.P90,
			ELTotalSum: c.TotalLoss,
		})
	}

	seriesDocs := make([]CountySeriesDocument, 0, len(countySeries))
	for _, cs := range countySeries {
		entries := make([]SeriesEntry, 0, len(cs.Points))
		for _, p := range cs.Points {
			entries = append(entries, SeriesEntry{
				Dt:      p.Dt.UTC().Format(time.RFC3339),
				ELTotal: p.Loss,
			})
		}
		seriesDocs = append(seriesDocs, CountySeriesDocument{FIPS: cs.FIPS, Series: entries})
	}

	return &ResultSet{
		Run:          run,
		TractSeries:  agg,
		Bands:        BandsDocument{Run: run, Bands: bandEntries},
		Top:          TopDocument{Run: run, Top: topEntries},
		Counties:     CountiesDocument{Run: run, Counties: countyEntries},
		CountySeries: seriesDocs,
	}
}
