package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

func TestCellFromKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    domain.Cell
		wantErr bool
	}{
		{
			name: "full raw key",
			key:  "raw/owm_forecast/run_dt=20250904T231843Z/forecast_lat=29.75_lon=-95.35.json",
			want: domain.Cell{Lat: 29.75, Lon: -95.35},
		},
		{
			name: "bare name",
			key:  "forecast_lat=-12.5_lon=130.25.json",
			want: domain.Cell{Lat: -12.5, Lon: 130.25},
		},
		{
			name:    "missing lat",
			key:     "forecast_lon=-95.35.json",
			wantErr: true,
		},
		{
			name:    "missing lon",
			key:     "forecast_lat=29.75.json",
			wantErr: true,
		},
		{
			name:    "garbage coordinates",
			key:     "forecast_lat=abc_lon=def.json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell, err := domain.CellFromKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cell)
		})
	}
}

func TestCellDocumentName_RoundTrips(t *testing.T) {
	cell := domain.Cell{Lat: 29.75, Lon: -95.35}
	parsed, err := domain.CellFromKey(cell.DocumentName())
	require.NoError(t, err)
	assert.Equal(t, cell, parsed)
}

func TestParseForecastDocument(t *testing.T) {
	data := []byte(`{"list": [
		{"dt": 1757030400, "wind": {"speed": 20.0}, "rain": {"3h": 5.5}},
		{"dt": 1757019600, "wind": {"speed": 12.3}, "rain": {"3h": 4.1}}
	]}`)

	records, err := domain.ParseForecastDocument(data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Entries come out time-ordered regardless of document order.
	assert.True(t, records[0].Dt.Before(records[1].Dt))
	assert.Equal(t, time.Unix(1757019600, 0).UTC(), records[0].Dt)
	assert.InDelta(t, 12.3, records[0].Wind.Value, 1e-9)
	assert.Equal(t, domain.SampleParsed, records[0].Wind.Origin)
	assert.InDelta(t, 5.5, records[1].Rain.Value, 1e-9)
}

func TestParseForecastDocument_MissingFields(t *testing.T) {
	data := []byte(`{"list": [
		{"dt": 1757019600},
		{"dt": 1757030400, "wind": {"speed": "not-a-number"}, "rain": {"3h": -3}}
	]}`)

	records, err := domain.ParseForecastDocument(data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Absent fields are zero and marked absent.
	assert.Zero(t, records[0].Wind.Value)
	assert.Equal(t, domain.SampleAbsent, records[0].Wind.Origin)
	assert.Equal(t, domain.SampleAbsent, records[0].Rain.Origin)

	// Present-but-invalid fields are zero and marked defaulted.
	assert.Zero(t, records[1].Wind.Value)
	assert.Equal(t, domain.SampleDefaulted, records[1].Wind.Origin)
	assert.Zero(t, records[1].Rain.Value)
	assert.Equal(t, domain.SampleDefaulted, records[1].Rain.Origin)
}

func TestParseForecastDocument_Empty(t *testing.T) {
	records, err := domain.ParseForecastDocument([]byte(`{"list": []}`))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = domain.ParseForecastDocument([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseForecastDocument_Malformed(t *testing.T) {
	_, err := domain.ParseForecastDocument([]byte(`not json`))
	require.Error(t, err)
}

func TestParseForecastDocument_QuotedNumbers(t *testing.T) {
	data := []byte(`{"list": [{"dt": 1757019600, "wind": {"speed": "18.5"}}]}`)
	records, err := domain.ParseForecastDocument(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 18.5, records[0].Wind.Value, 1e-9)
	assert.Equal(t, domain.SampleParsed, records[0].Wind.Origin)
}

func TestSortCells(t *testing.T) {
	cells := []domain.Cell{
		{Lat: 10, Lon: 10},
		{Lat: 0, Lon: 10},
		{Lat: 10, Lon: 0},
		{Lat: 0, Lon: 0},
	}
	domain.SortCells(cells)
	assert.Equal(t, []domain.Cell{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 10},
		{Lat: 10, Lon: 0},
		{Lat: 10, Lon: 10},
	}, cells)
}
