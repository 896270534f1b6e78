package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cat-loss-etl/internal/config"
	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

func testUnit(tiv, eal float64) domain.ExposureUnit {
	return domain.ExposureUnit{
		GeoID:    "48201123456",
		State:    "TX",
		County:   "Harris",
		EALTotal: domain.NumericSample(eal),
		TIVHome:  domain.NumericSample(tiv),
	}
}

func record(wind, rain float64) domain.HazardRecord {
	return domain.HazardRecord{
		Dt:   time.Date(2025, time.September, 5, 0, 0, 0, 0, time.UTC),
		Wind: domain.NumericSample(wind),
		Rain: domain.NumericSample(rain),
	}
}

func TestVulnerability(t *testing.T) {
	model := domain.NewLossModel(config.DefaultCalibration(), 100)

	// Linear in eal/maxEAL, clipped to [0.02, 0.5].
	assert.InDelta(t, 0.32, model.Vulnerability(domain.ParsedSample(100)), 1e-9)
	assert.InDelta(t, 0.17, model.Vulnerability(domain.ParsedSample(50)), 1e-9)
	assert.InDelta(t, 0.02, model.Vulnerability(domain.ParsedSample(0)), 1e-9)
	assert.InDelta(t, 0.02, model.Vulnerability(domain.AbsentSample()), 1e-9)
}

func TestVulnerability_ZeroMaxEALFallsBack(t *testing.T) {
	// All baseline hazards zero: every row gets the fixed fallback instead
	// of a division by zero.
	model := domain.NewLossModel(config.DefaultCalibration(), 0)

	assert.InDelta(t, 0.2, model.Vulnerability(domain.ParsedSample(0)), 1e-9)
	assert.InDelta(t, 0.2, model.Vulnerability(domain.AbsentSample()), 1e-9)
	assert.InDelta(t, 0.2, model.Vulnerability(domain.DefaultedSample()), 1e-9)
}

func TestExpectedLoss_ReferenceScenario(t *testing.T) {
	// One tract, $500k TIV, baseline hazard 100 (the run max), default
	// calibration: vulnerability = 0.02 + 0.3*1 = 0.32, step cap = $100.
	cal := config.DefaultCalibration()
	model := domain.NewLossModel(cal, 100)
	unit := testUnit(500000, 100)

	// Moderate step: wind 15 m/s, rain 10 mm. Intensities 0.5 and 0.1333;
	// raw = 500000 * 0.32 * (0.0010*0.5 + 0.0005*0.13333) ≈ $90.67, uncapped.
	loss1 := model.ExpectedLoss(record(15, 10), unit)
	assert.InDelta(t, 90.6667, loss1, 0.001)

	// Severe step: wind 40 m/s, rain 100 mm. Raw ≈ $320, capped at $100.
	loss2 := model.ExpectedLoss(record(40, 100), unit)
	assert.InDelta(t, 100.0, loss2, 1e-9)

	assert.InDelta(t, 190.6667, loss1+loss2, 0.001)
}

func TestExpectedLoss_CapInvariant(t *testing.T) {
	cal := config.DefaultCalibration()

	units := []domain.ExposureUnit{
		testUnit(500000, 100),
		testUnit(500000, 0),
		testUnit(0, 100),
		{GeoID: "48201123456", TIVHome: domain.DefaultedSample(), EALTotal: domain.DefaultedSample()},
	}
	records := []domain.HazardRecord{
		record(0, 0),
		record(15, 10),
		record(1e9, 1e9), // forecast spike
		{Dt: time.Now(), Wind: domain.DefaultedSample(), Rain: domain.AbsentSample()},
	}

	for _, maxEAL := range []float64{0, 100, 1e12} {
		model := domain.NewLossModel(cal, maxEAL)
		for _, u := range units {
			stepCap := model.StepCap(u)
			for _, rec := range records {
				loss := model.ExpectedLoss(rec, u)
				require.GreaterOrEqual(t, loss, 0.0)
				require.LessOrEqual(t, loss, stepCap)
			}
		}
	}
}

func TestExpectedLoss_IntensityClipping(t *testing.T) {
	cal := config.DefaultCalibration()
	// Huge cap so clipping is observable on the raw value.
	cal.StepCapShare = 1.0
	model := domain.NewLossModel(cal, 100)
	unit := testUnit(1000, 100)

	// Wind 60 m/s normalizes to 2.0 but clips at 1.5; so does 600 m/s.
	at60 := model.ExpectedLoss(record(60, 0), unit)
	at600 := model.ExpectedLoss(record(600, 0), unit)
	assert.InDelta(t, at60, at600, 1e-9)
	assert.InDelta(t, 1000*0.32*0.0010*1.5, at60, 1e-9)
}

func TestMaxEAL(t *testing.T) {
	units := []domain.ExposureUnit{
		testUnit(1, 50),
		testUnit(1, 900),
		testUnit(1, 0),
	}
	assert.InDelta(t, 900, domain.MaxEAL(units), 1e-9)
	assert.Zero(t, domain.MaxEAL(nil))
}

func TestCountyFIPSOf(t *testing.T) {
	assert.Equal(t, "48201", domain.CountyFIPSOf("48201123456"))
	assert.Equal(t, "481", domain.CountyFIPSOf("481"))
}
