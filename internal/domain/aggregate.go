package domain

import (
	"log/slog"
	"sort"
	"time"
)

// TopListLimit caps the ranked top-loss list.
const TopListLimit = 1000

// SeriesPoint is one timestep of an aggregated loss time series.
type SeriesPoint struct {
	Dt   time.Time
	Loss float64
}

// Band is the (p50, p90) percentile pair summarizing a tract's loss
// distribution over the run's time series.
type Band struct {
	GeoID string
	State string
	P50   float64
	P90   float64
}

// TopEntry is one row of the ranked top-loss list.
type TopEntry struct {
	GeoID     string
	State     string
	County    string
	TotalLoss float64
}

// CountyAggregate is the county-grain rollup of its member tracts.
type CountyAggregate struct {
	FIPS      string
	Name      string
	State     string
	TotalLoss float64
	P50       float64
	P90       float64
}

// CountySeries is one county's summed loss time series.
type CountySeries struct {
	FIPS   string
	Points []SeriesPoint
}

// SumByTractTime collapses loss rows into one row per (geoid, timestamp),
// summing contributions. Multiple hazard sources feeding the same
// tract-timestep add, they never average. Output is sorted by geoid then
// timestamp, which fixes the ordering for everything downstream.
func SumByTractTime(rows []LossRow) []LossRow {
	type key struct {
		geoid string
		dt    int64
	}
	sums := make(map[key]float64, len(rows))
	for _, r := range rows {
		sums[key{r.GeoID, r.Dt.Unix()}] += r.ExpectedLoss
	}

	out := make([]LossRow, 0, len(sums))
	for k, loss := range sums {
		out = append(out, LossRow{GeoID: k.geoid, Dt: time.Unix(k.dt, 0).UTC(), ExpectedLoss: loss})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GeoID != out[j].GeoID {
			return out[i].GeoID < out[j].GeoID
		}
		return out[i].Dt.Before(out[j].Dt)
	})
	return out
}

// Percentile computes the p-th percentile (p in [0, 1]) of values using
// linear interpolation between order statistics: rank h = (n-1)·p, result
// interpolated between the two nearest sorted values. For [1..10] this gives
// p50 = 5.5 and p90 = 9.1. Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return values[0]
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	h := float64(n-1) * clip(p, 0, 1)
	lo := int(h)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// TractBands computes per-tract (p50, p90) bands over the summed tract-time
// series. agg must be the output of [SumByTractTime]; bands come out in
// ascending geoid order.
func TractBands(agg []LossRow, units map[string]ExposureUnit) []Band {
	var bands []Band
	forEachGeoID(agg, func(geoid string, series []float64) {
		bands = append(bands, Band{
			GeoID: geoid,
			State: units[geoid].State,
			P50:   Percentile(series, 0.5),
			P90:   Percentile(series, 0.9),
		})
	})
	return bands
}

// TopTracts ranks tracts by total summed loss across all timesteps,
// descending, truncated to limit. Ties break on ascending geoid so the
// ranking never depends on input order.
func TopTracts(agg []LossRow, units map[string]ExposureUnit, limit int) []TopEntry {
	var entries []TopEntry
	forEachGeoID(agg, func(geoid string, series []float64) {
		var total float64
		for _, v := range series {
			total += v
		}
		u := units[geoid]
		entries = append(entries, TopEntry{
			GeoID:     geoid,
			State:     u.State,
			County:    u.County,
			TotalLoss: total,
		})
	})

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalLoss != entries[j].TotalLoss {
			return entries[i].TotalLoss > entries[j].TotalLoss
		}
		return entries[i].GeoID < entries[j].GeoID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// CountyRollup maps tract rows to county FIPS, sums member tracts' losses
// per timestep, and recomputes totals and percentile bands at the county
// grain. County name and state come from the first-seen member tract in
// ascending geoid order; a later member disagreeing is logged as a
// data-quality warning, not an error. Conservation holds by construction:
// each county total is the plain sum of its members' totals.
func CountyRollup(agg []LossRow, units map[string]ExposureUnit, logger *slog.Logger) ([]CountyAggregate, []CountySeries) {
	type meta struct {
		name  string
		state string
	}

	perStep := make(map[string]map[int64]float64) // fips -> dt -> loss
	totals := make(map[string]float64)
	names := make(map[string]meta)

	// agg is sorted by geoid, so "first seen" is the smallest member geoid.
	for _, r := range agg {
		fips := CountyFIPSOf(r.GeoID)
		u := units[r.GeoID]

		if m, ok := names[fips]; !ok {
			names[fips] = meta{name: u.County, state: u.State}
		} else if m.name != u.County && u.County != "" && m.name != "" {
			logger.Warn("conflicting county name for fips, keeping first seen",
				"fips", fips, "kept", m.name, "conflicting", u.County, "geoid", r.GeoID)
		}

		steps := perStep[fips]
		if steps == nil {
			steps = make(map[int64]float64)
			perStep[fips] = steps
		}
		steps[r.Dt.Unix()] += r.ExpectedLoss
		totals[fips] += r.ExpectedLoss
	}

	fipsList := make([]string, 0, len(perStep))
	for fips := range perStep {
		fipsList = append(fipsList, fips)
	}
	sort.Strings(fipsList)

	aggregates := make([]CountyAggregate, 0, len(fipsList))
	series := make([]CountySeries, 0, len(fipsList))
	for _, fips := range fipsList {
		steps := perStep[fips]

		dts := make([]int64, 0, len(steps))
		for dt := range steps {
			dts = append(dts, dt)
		}
		sort.Slice(dts, func(i, j int) bool { return dts[i] < dts[j] })

		points := make([]SeriesPoint, 0, len(dts))
		losses := make([]float64, 0, len(dts))
		for _, dt := range dts {
			points = append(points, SeriesPoint{Dt: time.Unix(dt, 0).UTC(), Loss: steps[dt]})
			losses = append(losses, steps[dt])
		}

		m := names[fips]
		aggregates = append(aggregates, CountyAggregate{
			FIPS:      fips,
			Name:      m.name,
			State:     m.state,
			TotalLoss: totals[fips],
			P50:       Percentile(losses, 0.5),
			P90:       Percentile(losses, 0.9),
		})
		series = append(series, CountySeries{FIPS: fips, Points: points})
	}

	return aggregates, series
}

// forEachGeoID walks rows grouped by geoid in ascending order, handing each
// geoid its per-timestep loss series. rows must be sorted by geoid (the
// [SumByTractTime] contract).
func forEachGeoID(rows []LossRow, fn func(geoid string, series []float64)) {
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].GeoID != rows[start].GeoID {
			series := make([]float64, 0, i-start)
			for _, r := range rows[start:i] {
				series = append(series, r.ExpectedLoss)
			}
			fn(rows[start].GeoID, series)
			start = i
		}
	}
}
