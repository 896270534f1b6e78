package domain

// NearestCell returns the grid cell minimizing squared planar distance
// (Δlat)² + (Δlon)² to the given centroid. Planar distance is a deliberate
// approximation: at gridded-forecast resolution the error is far below one
// cell. Ties resolve to the earlier cell in the slice, so callers must pass
// cells in a fixed order (see [SortCells]) for deterministic results.
//
// This is a full scan per lookup. At a few thousand exposure units against a
// few hundred cells that is cheap; a spatial index would be an optimization
// behind the same signature, not a correctness change.
func NearestCell(cells []Cell, lat, lon float64) (Cell, bool) {
	if len(cells) == 0 {
		return Cell{}, false
	}

	best := cells[0]
	bestDist := sqDist(best, lat, lon)
	for _, c := range cells[1:] {
		if d := sqDist(c, lat, lon); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, true
}

func sqDist(c Cell, lat, lon float64) float64 {
	dLat := c.Lat - lat
	dLon := c.Lon - lon
	return dLat*dLat + dLon*dLon
}
