// Package domain models the hazard-to-loss aggregation pipeline: gridded
// forecast time series joined to census-tract exposure, run through a
// calibrated loss model, and aggregated into tract and county statistics.
//
// # Data Source
//
// Raw hazard input is one JSON forecast document per grid cell, produced by
// the upstream ingest job from the OpenWeatherMap 5-day/3-hour forecast API.
// The cell's coordinates are encoded in the object key:
//
//	raw/owm_forecast/run_dt=20250904T231843Z/forecast_lat=29.75_lon=-95.35.json
//
// Each document holds a "list" of timestamped entries:
//
//	{"list": [{"dt": 1757026800, "wind": {"speed": 12.3}, "rain": {"3h": 4.1}}, ...]}
//
// "dt" is a unix timestamp (UTC), "wind.speed" is in m/s, and "rain.3h" is a
// 3-hour precipitation accumulation in mm. Both hazard fields are optional;
// missing or malformed values default to zero via [Sample], which records
// whether each value was parsed, defaulted, or absent so the defaulting
// policy lives in one place instead of at every access site.
//
// # Exposure Identifiers
//
// Exposure units are census tracts keyed by an 11-digit geoid. The first 5
// digits are the county FIPS code, which is how the county rollup partitions
// tracts. Geoids are stable across runs.
//
// # Runs
//
// A run is one immutable execution over a frozen input snapshot, identified
// by the ingest timestamp ("run_dt=20250904T231843Z"). The pipeline owns no
// state between runs; every output is a pure function of that run's hazard
// documents and the reference exposure tables, so reprocessing identical
// inputs yields byte-identical result documents. All ordering is explicit
// (sorted cells, ascending geoids, total-order tie breaks) to keep that
// guarantee honest.
//
// # Loss Model
//
// Per (tract, timestamp) row:
//
//	vulnerability = clip(0.02 + 0.3·(eal/maxEAL), 0.02, 0.5)   (0.2 flat when maxEAL = 0)
//	intensity     = clip(value/norm, 0, 1.5)                    (wind and rain separately)
//	raw           = tiv · vulnerability · (kWind·windInt + kFlood·floodInt)
//	expectedLoss  = clip(raw, 0, stepCapShare·tiv)
//
// The step cap bounds any single timestamp's loss to a fixed share of the
// tract's insured value. Forecast intensities can spike; the cap keeps one
// bad timestep from producing an unbounded loss.
package domain
