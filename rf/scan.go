package rf

import (
	"fmt"
	"math"
	"strings"
)

// ScanMode selects how an antenna moves its beam.
type ScanMode int

const (
	// ScanManual holds the beam where it was last pointed. Every update
	// counts as a complete scan.
	ScanManual ScanMode = iota
	// ScanCircular rotates the beam through 360° of azimuth.
	ScanCircular
	// ScanRaster sweeps back and forth across the scan width, stepping in
	// elevation after each bar.
	ScanRaster
	// ScanTrack keeps the beam on a designated player. Every update counts
	// as a complete scan.
	ScanTrack
)

func (m ScanMode) String() string {
	switch m {
	case ScanManual:
		return "manual"
	case ScanCircular:
		return "circular"
	case ScanRaster:
		return "raster"
	case ScanTrack:
		return "track"
	default:
		return fmt.Sprintf("scan(%d)", int(m))
	}
}

// ParseScanMode accepts the names printed by String.
func ParseScanMode(s string) (ScanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return ScanManual, nil
	case "circular":
		return ScanCircular, nil
	case "raster":
		return ScanRaster, nil
	case "track":
		return ScanTrack, nil
	}
	return ScanManual, fmt.Errorf("unknown scan mode %q", s)
}

// ScanListener is notified when the beam starts and finishes a scan bar.
// Bars are numbered from 1.
type ScanListener interface {
	OnStartScanEvent(ant *Antenna, bar int)
	OnEndScanEvent(ant *Antenna, bar int)
}

// validBars lists the raster bar counts the scan machine supports.
func validBars(n int) bool { return n == 1 || n == 2 || n == 4 }

const (
	defaultScanRate   = 60 * math.Pi / 180 // rad/s
	defaultScanWidth  = 30 * math.Pi / 180 // half width, rad
	defaultBarSpacing = 2 * math.Pi / 180  // rad
)

type scanEvent struct {
	start bool
	bar   int
}

// scanState is the beam position and the raster bookkeeping. Guarded by
// Antenna.scanMu.
type scanState struct {
	mode       ScanMode
	azimuth    float64 // rad, relative to platform heading
	elevation  float64 // rad
	elCenter   float64
	rate       float64
	width      float64
	barSpacing float64
	bars       int
	bar        int // 1-based
	direction  float64
	trackID    string
}

func newScanState() scanState {
	return scanState{
		mode:       ScanManual,
		rate:       defaultScanRate,
		width:      defaultScanWidth,
		barSpacing: defaultBarSpacing,
		bars:       1,
		bar:        1,
		direction:  1,
	}
}

// barElevation returns the beam elevation for bar, spreading the bars
// evenly around the centre elevation from top to bottom.
func (s *scanState) barElevation(bar int) float64 {
	offset := (float64(s.bars-1)/2 - float64(bar-1)) * s.barSpacing
	return s.elCenter + offset
}

// advance moves the beam by dt seconds and returns the bar events raised.
// pointAt resolves the beam direction in track mode.
func (s *scanState) advance(dt float64, pointAt func(id string) (az, el float64, ok bool)) []scanEvent {
	switch s.mode {
	case ScanCircular:
		if dt <= 0 {
			return nil
		}
		next := s.azimuth + s.rate*dt
		if next >= 2*math.Pi {
			s.azimuth = math.Mod(next, 2*math.Pi)
			return []scanEvent{{start: false, bar: 1}, {start: true, bar: 1}}
		}
		s.azimuth = next
		return nil

	case ScanRaster:
		if dt <= 0 {
			return nil
		}
		s.azimuth += s.direction * s.rate * dt
		if math.Abs(s.azimuth) < s.width {
			return nil
		}
		s.azimuth = math.Copysign(s.width, s.azimuth)
		s.direction = -s.direction
		ended := s.bar
		s.bar = ended%s.bars + 1
		s.elevation = s.barElevation(s.bar)
		return []scanEvent{{start: false, bar: ended}, {start: true, bar: s.bar}}

	case ScanTrack:
		if pointAt != nil {
			if az, el, ok := pointAt(s.trackID); ok {
				s.azimuth, s.elevation = az, el
			}
		}
		return []scanEvent{{start: false, bar: 1}, {start: true, bar: 1}}

	default:
		return []scanEvent{{start: false, bar: 1}, {start: true, bar: 1}}
	}
}
