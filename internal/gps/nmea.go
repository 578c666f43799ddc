package gps

import (
	"errors"
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

var (
	ErrNotNMEA     = errors.New("gps: not an nmea sentence")
	ErrBadSentence = errors.New("gps: malformed nmea sentence")
)

// minLockSatellites is the satellite count at which a GGA fix counts as 3D+.
const minLockSatellites = 4

// Parser accumulates RMC and GGA sentences into fixes.
// GGA carries quality, altitude and satellite count; RMC carries date,
// validity and speed. A fix is emitted on each RMC using the most recent GGA.
type Parser struct {
	gga     nmea.GGA
	haveGGA bool
}

// Feed parses one line. It returns the fix and true when the line completed
// a fix, and an error for malformed sentences. Unsupported sentence types
// are ignored.
func (p *Parser) Feed(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false, ErrNotNMEA
	}
	s, err := nmea.Parse(line)
	if err != nil {
		var unsupported *nmea.NotSupportedError
		if errors.As(err, &unsupported) {
			return Fix{}, false, nil
		}
		return Fix{}, false, fmt.Errorf("%w: %v", ErrBadSentence, err)
	}
	switch m := s.(type) {
	case nmea.GGA:
		p.gga, p.haveGGA = m, true
	case nmea.RMC:
		return p.fromRMC(m)
	}
	return Fix{}, false, nil
}

func (p *Parser) fromRMC(m nmea.RMC) (Fix, bool, error) {
	if !m.Time.Valid {
		// receiver has not resolved time yet
		return Fix{}, false, nil
	}
	fix := Fix{
		Hour:        m.Time.Hour,
		Minute:      m.Time.Minute,
		Second:      m.Time.Second,
		Millisecond: m.Time.Millisecond,
		Quality:     QualityTimeOnly,
	}
	if m.Date.Valid {
		fix.Day, fix.Month, fix.Year = m.Date.DD, m.Date.MM, 2000+m.Date.YY
	}

	// GGA only counts when it reports the same epoch as this RMC
	gga := p.gga
	sameEpoch := p.haveGGA && gga.Time == m.Time
	if m.Validity == nmea.ValidRMC && sameEpoch &&
		gga.FixQuality != nmea.Invalid && gga.FixQuality != "" &&
		gga.NumSatellites >= minLockSatellites {
		fix.Quality = Quality3DPlus
		fix.Latitude = m.Latitude
		fix.Longitude = m.Longitude
		fix.SpeedKnots = m.Speed
		fix.AltitudeM = gga.Altitude
		fix.Satellites = int(gga.NumSatellites)
	}
	return fix, true, nil
}
