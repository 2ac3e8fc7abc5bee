// Package config loads the YAML scenario that describes a simulation run:
// the players, their antennas and RF systems, and the track managers the
// sensors report to.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/rf"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
	"github.com/signalsfoundry/rfsensor-sim/track"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Defaults applied by Load.
const (
	DefaultTick     = 20 * time.Millisecond
	DefaultDuration = 10 * time.Second
	DefaultWorkers  = 4
)

type Config struct {
	Simulation    SimulationConfig     `yaml:"simulation"`
	Logging       LoggingConfig        `yaml:"logging"`
	Tracing       TracingConfig        `yaml:"tracing"`
	Players       []PlayerConfig       `yaml:"players"`
	Antennas      []AntennaConfig      `yaml:"antennas"`
	Radars        []RadarConfig        `yaml:"radars"`
	Jammers       []JammerConfig       `yaml:"jammers"`
	Rwrs          []RwrConfig          `yaml:"rwrs"`
	TrackManagers []TrackManagerConfig `yaml:"trackManagers"`
}

type SimulationConfig struct {
	Start    time.Time     `yaml:"start"`
	Tick     time.Duration `yaml:"tick"`
	Duration time.Duration `yaml:"duration"`
	Workers  int           `yaml:"workers"`
	Mode     string        `yaml:"mode"` // accelerated | realtime
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
}

// TracingConfig is overlaid by the RFSIM_TRACING_* environment variables.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // file | stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	Output      string  `yaml:"output"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type PlayerConfig struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Category string    `yaml:"category"`
	Lat      float64   `yaml:"lat"` // degrees
	Lon      float64   `yaml:"lon"` // degrees
	Alt      Quantity  `yaml:"alt"`
	Velocity ENU       `yaml:"velocity"`
	Heading  Quantity  `yaml:"heading"`
	RCS      Quantity  `yaml:"rcs"`
	TLE      [2]string `yaml:"tle"`
}

// ENU is a local east/north/up vector.
type ENU struct {
	East  Quantity `yaml:"east"`
	North Quantity `yaml:"north"`
	Up    Quantity `yaml:"up"`
}

// IsZero reports whether every component is zero.
func (v ENU) IsZero() bool { return v.East == 0 && v.North == 0 && v.Up == 0 }

type AntennaConfig struct {
	Name            string         `yaml:"name"`
	Player          string         `yaml:"player"`
	Gain            Quantity       `yaml:"gain"`
	Pattern         *PatternConfig `yaml:"pattern"`
	Polarization    string         `yaml:"polarization"`
	Categories      string         `yaml:"categories"`
	MaxRange        Quantity       `yaml:"maxRange"`
	MaxPlayers      int            `yaml:"maxPlayers"`
	AtmosphericLoss float64        `yaml:"atmosphericLossDbPerKm"`
	PoolSize        int            `yaml:"poolSize"`
	Scan            ScanConfig     `yaml:"scan"`
}

// PatternConfig is a tabulated gain pattern. One-dimensional tables use
// Angles/GainDB; two-dimensional tables use Azimuths, Elevations and Table.
type PatternConfig struct {
	Degrees    bool        `yaml:"degrees"`
	Angles     []float64   `yaml:"angles"`
	GainDB     []float64   `yaml:"gainDb"`
	Azimuths   []float64   `yaml:"azimuths"`
	Elevations []float64   `yaml:"elevations"`
	Table      [][]float64 `yaml:"table"`
}

type ScanConfig struct {
	Mode   string   `yaml:"mode"`
	Bars   int      `yaml:"bars"`
	Rate   Quantity `yaml:"rate"`
	Width  Quantity `yaml:"width"`
	Target string   `yaml:"target"`
}

// RfConfig holds the parameters shared by every RF system. Setter-backed
// values are pointers so an explicit zero still reaches the setter.
type RfConfig struct {
	Name              string    `yaml:"name"`
	Player            string    `yaml:"player"`
	Antenna           string    `yaml:"antenna"`
	Frequency         *Quantity `yaml:"frequency"`
	Bandwidth         *Quantity `yaml:"bandwidth"`
	BandwidthNoise    *Quantity `yaml:"bandwidthNoise"`
	PowerPeak         *Quantity `yaml:"powerPeak"`
	NoiseFigure       *Quantity `yaml:"noiseFigure"`
	SystemTemperature *Quantity `yaml:"systemTemperature"`
	LossXmit          *Quantity `yaml:"lossXmit"`
	LossRecv          *Quantity `yaml:"lossRecv"`
	LossSignalProcess *Quantity `yaml:"lossSignalProcess"`
	DisableEmissions  bool      `yaml:"disableEmissions"`
	ReceiveBuffer     int       `yaml:"receiveBuffer"`
}

type RadarConfig struct {
	RfConfig     `yaml:",inline"`
	Threshold    Decibels     `yaml:"threshold"`
	IGain        *Quantity    `yaml:"igain"`
	MaxRange     *Quantity    `yaml:"maxRange"`
	PulseWidth   *Quantity    `yaml:"pulseWidth"`
	PRF          *Quantity    `yaml:"prf"`
	Policy       PolicyConfig `yaml:"policy"`
	TrackManager string       `yaml:"trackManager"`
}

type PolicyConfig struct {
	Kind         string   `yaml:"kind"`
	Target       string   `yaml:"target"`
	MinRangeRate Quantity `yaml:"minRangeRate"`
}

type JammerConfig struct {
	RfConfig `yaml:",inline"`
}

type RwrConfig struct {
	RfConfig     `yaml:",inline"`
	Threshold    Decibels `yaml:"threshold"`
	TrackManager string   `yaml:"trackManager"`
}

type TrackManagerConfig struct {
	Name            string   `yaml:"name"`
	Player          string   `yaml:"player"`
	Kind            string   `yaml:"kind"`
	Categories      string   `yaml:"categories"`
	MaxTracks       *int      `yaml:"maxTracks"`
	MaxTrackAge     *Quantity `yaml:"maxTrackAge"`
	FirstTrackID    *int      `yaml:"firstTrackId"`
	Alpha           *float64  `yaml:"alpha"`
	Beta            *float64  `yaml:"beta"`
	Gamma           *float64  `yaml:"gamma"`
	LogTrackUpdates bool      `yaml:"logTrackUpdates"`
	IntakeSize      int       `yaml:"intakeSize"`
}

// Load reads, decodes and validates the scenario at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML scenario. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Simulation.Tick <= 0 {
		c.Simulation.Tick = DefaultTick
	}
	if c.Simulation.Duration <= 0 {
		c.Simulation.Duration = DefaultDuration
	}
	if c.Simulation.Workers <= 0 {
		c.Simulation.Workers = DefaultWorkers
	}
	if c.Simulation.Mode == "" {
		c.Simulation.Mode = "accelerated"
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks names, enumerations and cross references.
func (c *Config) Validate() error {
	if _, err := timectrl.ParseMode(c.Simulation.Mode); err != nil {
		return invalid("simulation.mode %q must be accelerated or realtime", c.Simulation.Mode)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "file", "stdout", "otlp", "otlpgrpc":
	default:
		return invalid("tracing.exporter %q must be file, stdout or otlp", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return invalid("tracing.sampleRatio %v must be within [0, 1]", c.Tracing.SampleRatio)
	}

	players := make(map[string]bool, len(c.Players))
	for i, p := range c.Players {
		if p.ID == "" {
			return invalid("players[%d].id is required", i)
		}
		if players[p.ID] {
			return invalid("players[%d]: duplicate id %q", i, p.ID)
		}
		players[p.ID] = true
		if _, ok := model.ParseCategory(p.Category); !ok {
			return invalid("players[%d]: unknown category %q", i, p.Category)
		}
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return invalid("players[%d]: lat/lon out of range", i)
		}
		if (p.TLE[0] == "") != (p.TLE[1] == "") {
			return invalid("players[%d]: tle needs both lines", i)
		}
		if p.RCS < 0 {
			return invalid("players[%d]: rcs must be >= 0", i)
		}
	}

	antennas := make(map[string]bool, len(c.Antennas))
	for i, a := range c.Antennas {
		if a.Name == "" {
			return invalid("antennas[%d].name is required", i)
		}
		if !players[a.Player] {
			return invalid("antennas[%d]: unknown player %q", i, a.Player)
		}
		key := a.Player + "/" + a.Name
		if antennas[key] {
			return invalid("antennas[%d]: duplicate antenna %q on %q", i, a.Name, a.Player)
		}
		antennas[key] = true
		if a.Polarization != "" {
			if _, err := rf.ParsePolarization(a.Polarization); err != nil {
				return invalid("antennas[%d]: %v", i, err)
			}
		}
		if a.Categories != "" {
			if _, ok := model.ParseCategory(a.Categories); !ok {
				return invalid("antennas[%d]: unknown categories %q", i, a.Categories)
			}
		}
		if a.Scan.Mode != "" {
			if _, err := rf.ParseScanMode(a.Scan.Mode); err != nil {
				return invalid("antennas[%d]: %v", i, err)
			}
		}
		if a.PoolSize < 0 || a.PoolSize > rf.MaxEmissions {
			return invalid("antennas[%d].poolSize %d must be within [0, %d]", i, a.PoolSize, rf.MaxEmissions)
		}
		if err := a.Pattern.validate(); err != nil {
			return invalid("antennas[%d].pattern: %v", i, err)
		}
	}

	managers := make(map[string]bool, len(c.TrackManagers))
	for i, tm := range c.TrackManagers {
		if tm.Name == "" {
			return invalid("trackManagers[%d].name is required", i)
		}
		if managers[tm.Name] {
			return invalid("trackManagers[%d]: duplicate name %q", i, tm.Name)
		}
		managers[tm.Name] = true
		if tm.IntakeSize < 0 || tm.IntakeSize > track.DefaultIntakeSize {
			return invalid("trackManagers[%d].intakeSize %d must be within [0, %d]", i, tm.IntakeSize, track.DefaultIntakeSize)
		}
		if tm.Player != "" && !players[tm.Player] {
			return invalid("trackManagers[%d]: unknown player %q", i, tm.Player)
		}
		if _, err := track.ParseKind(tm.Kind); err != nil {
			return invalid("trackManagers[%d]: %v", i, err)
		}
		if tm.Categories != "" {
			if _, ok := model.ParseCategory(tm.Categories); !ok {
				return invalid("trackManagers[%d]: unknown categories %q", i, tm.Categories)
			}
		}
	}

	systems := make(map[string]bool)
	checkSystem := func(section string, i int, s RfConfig, tm string) error {
		if s.Name == "" {
			return invalid("%s[%d].name is required", section, i)
		}
		if systems[s.Name] {
			return invalid("%s[%d]: duplicate system name %q", section, i, s.Name)
		}
		systems[s.Name] = true
		if !players[s.Player] {
			return invalid("%s[%d]: unknown player %q", section, i, s.Player)
		}
		if s.Antenna == "" {
			return invalid("%s[%d].antenna is required", section, i)
		}
		if !antennas[s.Player+"/"+s.Antenna] {
			return invalid("%s[%d]: player %q has no antenna %q", section, i, s.Player, s.Antenna)
		}
		if tm != "" && !managers[tm] {
			return invalid("%s[%d]: unknown trackManager %q", section, i, tm)
		}
		if s.ReceiveBuffer < 0 || s.ReceiveBuffer > rf.MaxEmissions {
			return invalid("%s[%d].receiveBuffer %d must be within [0, %d]", section, i, s.ReceiveBuffer, rf.MaxEmissions)
		}
		return nil
	}
	for i, r := range c.Radars {
		if err := checkSystem("radars", i, r.RfConfig, r.TrackManager); err != nil {
			return err
		}
		if r.Policy.Kind != "" {
			if _, err := rf.ParsePolicyKind(r.Policy.Kind); err != nil {
				return invalid("radars[%d]: %v", i, err)
			}
		}
	}
	for i, j := range c.Jammers {
		if err := checkSystem("jammers", i, j.RfConfig, ""); err != nil {
			return err
		}
	}
	for i, w := range c.Rwrs {
		if err := checkSystem("rwrs", i, w.RfConfig, w.TrackManager); err != nil {
			return err
		}
	}
	return nil
}

func (p *PatternConfig) validate() error {
	if p == nil {
		return nil
	}
	switch {
	case len(p.Table) > 0:
		if len(p.Table) != len(p.Elevations) {
			return fmt.Errorf("table has %d rows for %d elevations", len(p.Table), len(p.Elevations))
		}
		for i, row := range p.Table {
			if len(row) != len(p.Azimuths) {
				return fmt.Errorf("table row %d has %d values for %d azimuths", i, len(row), len(p.Azimuths))
			}
		}
	case len(p.Angles) > 0:
		if len(p.Angles) != len(p.GainDB) {
			return fmt.Errorf("%d angles for %d gain values", len(p.Angles), len(p.GainDB))
		}
	default:
		return fmt.Errorf("pattern needs angles/gainDb or azimuths/elevations/table")
	}
	return nil
}

// GainPattern builds the rf pattern described by p, or nil.
func (p *PatternConfig) GainPattern() rf.GainPattern {
	if p == nil {
		return nil
	}
	if len(p.Table) > 0 {
		return rf.Table2D{Azimuths: p.Azimuths, Elevations: p.Elevations, GainDB: p.Table}
	}
	return rf.Table1D{Angles: p.Angles, GainDB: p.GainDB}
}
