package domain

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cell identifies one forecast source point by its grid coordinates.
type Cell struct {
	Lat float64
	Lon float64
}

// DocumentName renders the cell's coordinates in the raw object key
// convention, e.g. "forecast_lat=29.75_lon=-95.35.json".
func (c Cell) DocumentName() string {
	return "forecast_lat=" + formatCoord(c.Lat) + "_lon=" + formatCoord(c.Lon) + ".json"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CellFromKey parses a cell's latitude and longitude from a raw forecast
// object key of the form "..._lat=<lat>_lon=<lon>.json".
func CellFromKey(key string) (Cell, error) {
	name := path.Base(key)

	_, rest, ok := strings.Cut(name, "lat=")
	if !ok {
		return Cell{}, fmt.Errorf("parse cell key %q: missing lat", key)
	}
	latStr, rest, ok := strings.Cut(rest, "_lon=")
	if !ok {
		return Cell{}, fmt.Errorf("parse cell key %q: missing lon", key)
	}
	lonStr := strings.TrimSuffix(rest, ".json")

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Cell{}, fmt.Errorf("parse cell key %q: bad lat: %w", key, err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Cell{}, fmt.Errorf("parse cell key %q: bad lon: %w", key, err)
	}

	return Cell{Lat: lat, Lon: lon}, nil
}

// HazardRecord is one timestep of hazard intensity at a grid cell.
type HazardRecord struct {
	Dt   time.Time // absolute UTC instant
	Wind Sample    // m/s
	Rain Sample    // 3-hour accumulation, mm
}

// forecastDocument mirrors the OWM-style raw document. Hazard fields are kept
// as raw JSON so Sample can distinguish absent from present-but-invalid.
type forecastDocument struct {
	List []forecastEntry `json:"list"`
}

type forecastEntry struct {
	Dt   int64 `json:"dt"`
	Wind struct {
		Speed json.RawMessage `json:"speed"`
	} `json:"wind"`
	Rain struct {
		ThreeH json.RawMessage `json:"3h"`
	} `json:"rain"`
}

// ParseForecastDocument decodes one raw per-cell forecast document into a
// time-ordered hazard series. Documents with zero entries yield an empty
// slice, which callers treat as "drop this cell".
func ParseForecastDocument(data []byte) ([]HazardRecord, error) {
	var doc forecastDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse forecast document: %w", err)
	}

	records := make([]HazardRecord, 0, len(doc.List))
	for _, e := range doc.List {
		records = append(records, HazardRecord{
			Dt:   time.Unix(e.Dt, 0).UTC(),
			Wind: JSONSample(e.Wind.Speed),
			Rain: JSONSample(e.Rain.ThreeH),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Dt.Before(records[j].Dt)
	})

	return records, nil
}

// SortCells orders cells by latitude then longitude. The nearest-neighbor tie
// break depends on this ordering, so it runs once per run, up front.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Lat != cells[j].Lat {
			return cells[i].Lat < cells[j].Lat
		}
		return cells[i].Lon < cells[j].Lon
	})
}
