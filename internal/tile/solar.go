package tile

import (
	"math"
	"time"
)

// SolarTime shifts t by the whole number of hours corresponding to lon,
// truncated towards zero. lon is wrapped into [-180, 180) first.
func SolarTime(t time.Time, lon float64) time.Time {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon -= 180
	hours := math.Trunc(lon / 15)
	return t.UTC().Add(time.Duration(hours) * time.Hour)
}

// SolarDay returns the calendar date of SolarTime as midnight UTC.
func SolarDay(t time.Time, lon float64) time.Time {
	s := SolarTime(t, lon)
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
}
