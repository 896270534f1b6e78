package domain

import (
	"time"

	"github.com/couchcryptid/cat-loss-etl/internal/config"
)

const (
	vulnFloor    = 0.02
	vulnCeiling  = 0.5
	vulnSlope    = 0.3
	vulnFallback = 0.2 // used when the run's max baseline hazard is zero

	intensityCeiling = 1.5
)

// LossRow is the expected loss for one tract at one forecast timestep.
type LossRow struct {
	GeoID        string
	Dt           time.Time
	ExpectedLoss float64
}

// LossModel computes capped expected losses from hazard intensities and
// exposure. Calibration and the run's max baseline hazard are fixed at
// construction; the model itself is stateless and safe for concurrent use.
type LossModel struct {
	cal    config.Calibration
	maxEAL float64
}

// NewLossModel builds a model for one run. maxEAL is the largest baseline
// hazard score across the run's exposure set (see [MaxEAL]); when it is zero
// every row gets the fixed fallback vulnerability instead of dividing by zero.
func NewLossModel(cal config.Calibration, maxEAL float64) *LossModel {
	return &LossModel{cal: cal, maxEAL: maxEAL}
}

// Vulnerability maps a tract's baseline hazard score onto [0.02, 0.5].
func (m *LossModel) Vulnerability(eal Sample) float64 {
	if m.maxEAL == 0 {
		return vulnFallback
	}
	return clip(vulnFloor+vulnSlope*(eal.Value/m.maxEAL), vulnFloor, vulnCeiling)
}

// ExpectedLoss computes the capped loss for one hazard record against one
// exposure unit. The result is always within [0, stepCapShare·tiv] no matter
// how large or malformed the inputs are.
func (m *LossModel) ExpectedLoss(rec HazardRecord, unit ExposureUnit) float64 {
	tiv := unit.TIVHome.Value
	vuln := m.Vulnerability(unit.EALTotal)

	windIntensity := clip(rec.Wind.Value/m.cal.WindNorm, 0, intensityCeiling)
	floodIntensity := clip(rec.Rain.Value/m.cal.RainNorm, 0, intensityCeiling)

	raw := tiv * vuln * (m.cal.KWind*windIntensity + m.cal.KFlood*floodIntensity)

	return clip(raw, 0, m.cal.StepCapShare*tiv)
}

// StepCap returns the per-timestep loss ceiling for an exposure unit.
func (m *LossModel) StepCap(unit ExposureUnit) float64 {
	return m.cal.StepCapShare * unit.TIVHome.Value
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
