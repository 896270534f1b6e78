package domain_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func step(i int) time.Time {
	return time.Date(2025, time.September, 5, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 3 * time.Hour)
}

func row(geoid string, i int, loss float64) domain.LossRow {
	return domain.LossRow{GeoID: geoid, Dt: step(i), ExpectedLoss: loss}
}

func unitsByGeoID(units ...domain.ExposureUnit) map[string]domain.ExposureUnit {
	m := make(map[string]domain.ExposureUnit, len(units))
	for _, u := range units {
		m[u.GeoID] = u
	}
	return m
}

func namedUnit(geoid, county string) domain.ExposureUnit {
	return domain.ExposureUnit{GeoID: geoid, State: "TX", County: county}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.InDelta(t, 5.5, domain.Percentile(values, 0.5), 1e-9)
	assert.InDelta(t, 9.1, domain.Percentile(values, 0.9), 1e-9)
	assert.InDelta(t, 1.0, domain.Percentile(values, 0), 1e-9)
	assert.InDelta(t, 10.0, domain.Percentile(values, 1), 1e-9)

	// Input order must not matter.
	shuffled := []float64{7, 1, 10, 4, 2, 9, 5, 3, 8, 6}
	assert.InDelta(t, 5.5, domain.Percentile(shuffled, 0.5), 1e-9)
	assert.InDelta(t, 9.1, domain.Percentile(shuffled, 0.9), 1e-9)

	// The input slice is left alone.
	assert.Equal(t, []float64{7, 1, 10, 4, 2, 9, 5, 3, 8, 6}, shuffled)

	assert.Zero(t, domain.Percentile(nil, 0.5))
	assert.InDelta(t, 42.0, domain.Percentile([]float64{42}, 0.9), 1e-9)
}

func TestSumByTractTime(t *testing.T) {
	rows := []domain.LossRow{
		row("48201200000", 1, 5),
		row("48201100000", 0, 10),
		row("48201100000", 0, 7), // same tract-timestep, must add
		row("48201100000", 1, 2),
	}

	agg := domain.SumByTractTime(rows)
	require.Len(t, agg, 3)

	// Sorted by geoid then timestamp.
	assert.Equal(t, "48201100000", agg[0].GeoID)
	assert.Equal(t, step(0), agg[0].Dt)
	assert.InDelta(t, 17.0, agg[0].ExpectedLoss, 1e-9)
	assert.Equal(t, "48201100000", agg[1].GeoID)
	assert.InDelta(t, 2.0, agg[1].ExpectedLoss, 1e-9)
	assert.Equal(t, "48201200000", agg[2].GeoID)
}

func TestTractBands(t *testing.T) {
	var rows []domain.LossRow
	for i := 1; i <= 10; i++ {
		rows = append(rows, row("48201100000", i, float64(i)))
	}
	agg := domain.SumByTractTime(rows)

	bands := domain.TractBands(agg, unitsByGeoID(namedUnit("48201100000", "Harris")))
	require.Len(t, bands, 1)
	assert.Equal(t, "48201100000", bands[0].GeoID)
	assert.Equal(t, "TX", bands[0].State)
	assert.InDelta(t, 5.5, bands[0].P50, 1e-9)
	assert.InDelta(t, 9.1, bands[0].P90, 1e-9)
}

func TestTopTracts(t *testing.T) {
	agg := domain.SumByTractTime([]domain.LossRow{
		row("48201100000", 0, 50),
		row("48201100000", 1, 50),
		row("48201200000", 0, 100), // ties the first tract's total
		row("48039610000", 0, 250),
		row("48167720000", 0, 10),
	})
	units := unitsByGeoID(
		namedUnit("48201100000", "Harris"),
		namedUnit("48201200000", "Harris"),
		namedUnit("48039610000", "Brazoria"),
		namedUnit("48167720000", "Galveston"),
	)

	top := domain.TopTracts(agg, units, 0)
	require.Len(t, top, 4)
	assert.Equal(t, "48039610000", top[0].GeoID)
	assert.InDelta(t, 250.0, top[0].TotalLoss, 1e-9)

	// Equal totals break ties by ascending geoid.
	assert.Equal(t, "48201100000", top[1].GeoID)
	assert.Equal(t, "48201200000", top[2].GeoID)
	assert.Equal(t, "48167720000", top[3].GeoID)
	assert.Equal(t, "Galveston", top[3].County)
}

func TestTopTracts_Truncates(t *testing.T) {
	agg := domain.SumByTractTime([]domain.LossRow{
		row("48201100000", 0, 3),
		row("48201200000", 0, 2),
		row("48039610000", 0, 1),
	})

	top := domain.TopTracts(agg, map[string]domain.ExposureUnit{}, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "48201100000", top[0].GeoID)
	assert.Equal(t, "48201200000", top[1].GeoID)
}

func TestCountyRollup(t *testing.T) {
	agg := domain.SumByTractTime([]domain.LossRow{
		row("48201100000", 0, 10),
		row("48201100000", 1, 20),
		row("48201200000", 0, 5),
		row("48039610000", 0, 7),
	})
	units := unitsByGeoID(
		namedUnit("48201100000", "Harris"),
		namedUnit("48201200000", "Harris"),
		namedUnit("48039610000", "Brazoria"),
	)

	counties, series := domain.CountyRollup(agg, units, discardLogger())
	require.Len(t, counties, 2)
	require.Len(t, series, 2)

	// Ascending FIPS order.
	assert.Equal(t, "48039", counties[0].FIPS)
	assert.Equal(t, "Brazoria", counties[0].Name)
	assert.Equal(t, "48201", counties[1].FIPS)
	assert.Equal(t, "Harris", counties[1].Name)

	// Conservation: the county total is exactly the sum of member tract rows.
	assert.Equal(t, 7.0, counties[0].TotalLoss)
	assert.Equal(t, 35.0, counties[1].TotalLoss)

	// Member tracts sum per timestep before the series is cut.
	require.Len(t, series[1].Points, 2)
	assert.Equal(t, step(0), series[1].Points[0].Dt)
	assert.InDelta(t, 15.0, series[1].Points[0].Loss, 1e-9)
	assert.InDelta(t, 20.0, series[1].Points[1].Loss, 1e-9)
}

func TestCountyRollup_Conservation(t *testing.T) {
	agg := domain.SumByTractTime([]domain.LossRow{
		row("48201100000", 0, 0.1),
		row("48201200000", 0, 0.2),
		row("48201300000", 1, 0.3),
		row("48039610000", 0, 0.4),
		row("48167720000", 2, 0.5),
	})

	var tractTotal float64
	for _, r := range agg {
		tractTotal += r.ExpectedLoss
	}

	counties, _ := domain.CountyRollup(agg, map[string]domain.ExposureUnit{}, discardLogger())
	var countyTotal float64
	for _, c := range counties {
		countyTotal += c.TotalLoss
	}
	assert.Equal(t, tractTotal, countyTotal)
}

func TestCountyRollup_NameConflictKeepsFirstSeen(t *testing.T) {
	agg := domain.SumByTractTime([]domain.LossRow{
		row("48201100000", 0, 1),
		row("48201200000", 0, 1),
	})
	units := unitsByGeoID(
		namedUnit("48201100000", "Harris"),
		namedUnit("48201200000", "Haris"), // typo upstream
	)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	counties, _ := domain.CountyRollup(agg, units, logger)
	require.Len(t, counties, 1)
	assert.Equal(t, "Harris", counties[0].Name)
	assert.Contains(t, buf.String(), "conflicting county name")
}

func TestBuildResultSet_Deterministic(t *testing.T) {
	agg := domain.SumByTractTime([]domain.LossRow{
		row("48201100000", 0, 12.5),
		row("48201100000", 1, 3.25),
		row("48201200000", 0, 12.5), // total ties the first tract
		row("48201200000", 1, 3.25),
		row("48039610000", 0, 99),
	})
	units := unitsByGeoID(
		namedUnit("48201100000", "Harris"),
		namedUnit("48201200000", "Harris"),
		namedUnit("48039610000", "Brazoria"),
	)

	first := domain.BuildResultSet("20250904T231843Z", agg, units, discardLogger())
	second := domain.BuildResultSet("20250904T231843Z", agg, units, discardLogger())

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)

	assert.Equal(t, "20250904T231843Z", first.Run)
	require.Len(t, first.Top.Top, 3)
	assert.Equal(t, "48039610000", first.Top.Top[0].GeoID)
	assert.Equal(t, "48201100000", first.Top.Top[1].GeoID)

	require.Len(t, first.CountySeries, 2)
	assert.Equal(t, "48039", first.CountySeries[0].FIPS)
	require.NotEmpty(t, first.CountySeries[0].Series)
	assert.Equal(t, "2025-09-05T00:00:00Z", first.CountySeries[0].Series[0].Dt)
}
