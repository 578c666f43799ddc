// Package gps holds the GPS fix model and the receivers that produce fixes:
// a serial NMEA receiver for real hardware and a simulated receiver for
// bench runs and tests.
package gps

import (
	"fmt"
	"time"
)

// Quality tags how much of a lock the receiver reported.
type Quality int

const (
	// QualityNone means no usable time or position.
	QualityNone Quality = iota
	// QualityTimeOnly means the receiver reported UTC time but no position fix.
	QualityTimeOnly
	// Quality3DPlus means a full position lock (3D or better) with time.
	Quality3DPlus
)

func (q Quality) String() string {
	switch q {
	case QualityTimeOnly:
		return "time-only"
	case Quality3DPlus:
		return "3d+"
	default:
		return "none"
	}
}

// Fix is a GPS-reported timestamp plus the position that came with it.
// Year, Month and Day are zero when the receiver only produced a time of day.
type Fix struct {
	Year        int     `json:"year,omitempty"`
	Month       int     `json:"month,omitempty"`
	Day         int     `json:"day,omitempty"`
	Hour        int     `json:"hour"`
	Minute      int     `json:"minute"`
	Second      int     `json:"second"`
	Millisecond int     `json:"millisecond"`
	Quality     Quality `json:"quality"`

	Latitude   float64 `json:"lat,omitempty"`
	Longitude  float64 `json:"lon,omitempty"`
	AltitudeM  float64 `json:"altitudeM,omitempty"`
	SpeedKnots float64 `json:"speedKnots,omitempty"`
	Satellites int     `json:"satellites,omitempty"`
}

// HasDate reports whether the fix carries a calendar date.
func (f Fix) HasDate() bool {
	return f.Year != 0
}

// HasPositionLock reports whether the fix is a full position lock.
func (f Fix) HasPositionLock() bool {
	return f.Quality == Quality3DPlus
}

// Time converts the fix to a UTC time.Time. A time-only fix is placed on
// 1970-01-01, matching how the device clock treats a dateless lock.
func (f Fix) Time() time.Time {
	year, month, day := 1970, 1, 1
	if f.HasDate() {
		year, month, day = f.Year, f.Month, f.Day
	}
	return time.Date(year, time.Month(month), day, f.Hour, f.Minute, f.Second, f.Millisecond*int(time.Millisecond), time.UTC)
}

// DateTime renders the fix as "YYYY-MM-DD HH:MM:SS.mmm".
// Dateless fixes render the date as 0000-00-00.
func (f Fix) DateTime() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		f.Year, f.Month, f.Day, f.Hour, f.Minute, f.Second, f.Millisecond)
}

// FixFromTime builds a fix from t (converted to UTC) with the given quality.
func FixFromTime(t time.Time, q Quality) Fix {
	t = t.UTC()
	return Fix{
		Year:        t.Year(),
		Month:       int(t.Month()),
		Day:         t.Day(),
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Second:      t.Second(),
		Millisecond: t.Nanosecond() / int(time.Millisecond),
		Quality:     q,
	}
}

// ParseDateTime parses "YYYY-MM-DD HH:MM:SS.mmm" into a fix with the given quality.
func ParseDateTime(s string, q Quality) (Fix, error) {
	t, err := time.Parse("2006-01-02 15:04:05.000", s)
	if err != nil {
		return Fix{}, fmt.Errorf("gps: parse datetime %q: %w", s, err)
	}
	return FixFromTime(t, q), nil
}
