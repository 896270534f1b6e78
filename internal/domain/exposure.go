package domain

// ExposureUnit is one census tract's exposure record: location, reference
// hazard severity (EAL), and the home-line insured value from the book.
type ExposureUnit struct {
	GeoID       string // 11-digit tract identifier
	State       string
	County      string
	CentroidLat float64
	CentroidLon float64
	EALTotal    Sample // baseline hazard score (expected annual loss)
	TIVHome     Sample // total insured value, home line, dollars
}

// CountyFIPS returns the 5-digit county FIPS code, the leading 5 characters
// of the tract geoid.
func (u ExposureUnit) CountyFIPS() string {
	return CountyFIPSOf(u.GeoID)
}

// CountyFIPSOf derives a county FIPS from a tract geoid. Geoids shorter than
// 5 characters (malformed reference data) are returned unchanged.
func CountyFIPSOf(geoid string) string {
	if len(geoid) < 5 {
		return geoid
	}
	return geoid[:5]
}

// BookEntry is one tract's row in the synthetic exposure book.
type BookEntry struct {
	GeoID   string
	TIVHome float64 // dollars, whole
}

// MaxEAL returns the largest baseline hazard score across the exposure set.
// Defaulted and absent scores count as zero, matching the loss model's view.
func MaxEAL(units []ExposureUnit) float64 {
	var max float64
	for _, u := range units {
		if u.EALTotal.Value > max {
			max = u.EALTotal.Value
		}
	}
	return max
}
