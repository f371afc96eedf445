package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"grain_sim/internal/domain"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Output     OutputConfig     `toml:"output"`
	Log        LogConfig        `toml:"log"`
	Raw        map[string]any   `toml:"-"`
	Path       string           `toml:"-"`
}

type SimulationConfig struct {
	StartYear   int     `toml:"start_year" json:"start_year"`
	HorizonYear int     `toml:"horizon_year" json:"horizon_year"`
	Grazers     int     `toml:"grazers" json:"grazers"`
	Pests       int     `toml:"pests" json:"pests"`
	CropHeight  float64 `toml:"crop_height" json:"crop_height"`
	Seed        int64   `toml:"seed" json:"seed"`
	PartyCount  int     `toml:"party_count" json:"party_count"`
}

type OutputConfig struct {
	TSVPath string `toml:"tsv_path"`
	DBPath  string `toml:"db_path"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	TracePhases bool   `toml:"trace_phases"`
}

// Default is the configuration used when no file is given: six years from
// 2019 with one grazer, a hundred pests and a one-inch crop.
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			StartYear:   2019,
			HorizonYear: 2025,
			Grazers:     1,
			Pests:       100,
			CropHeight:  1.0,
			PartyCount:  domain.PartyCount,
		},
		Output: OutputConfig{
			TSVPath: "grain_sim.txt",
			DBPath:  "data/grain_sim.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML file over Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	resolved := path
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(bytes), &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	cfg.Raw = raw
	cfg.Path = resolved
	if cfg.Simulation.PartyCount == 0 {
		cfg.Simulation.PartyCount = domain.PartyCount
	}
	return cfg, nil
}

func (c Config) Validate() error {
	s := c.Simulation
	switch {
	case s.HorizonYear < s.StartYear:
		return fmt.Errorf("%w: horizon_year %d is before start_year %d", ErrInvalid, s.HorizonYear, s.StartYear)
	case s.Grazers < 0:
		return fmt.Errorf("%w: grazers must not be negative", ErrInvalid)
	case s.Pests < 0:
		return fmt.Errorf("%w: pests must not be negative", ErrInvalid)
	case s.CropHeight < 0:
		return fmt.Errorf("%w: crop_height must not be negative", ErrInvalid)
	case s.PartyCount != domain.PartyCount:
		return fmt.Errorf("%w: party_count is fixed at %d, got %d", ErrInvalid, domain.PartyCount, s.PartyCount)
	case strings.TrimSpace(c.Output.TSVPath) == "":
		return fmt.Errorf("%w: output.tsv_path is required", ErrInvalid)
	}
	return nil
}

// WorldSeed returns the starting values for the shared world.
func (c Config) WorldSeed() domain.Seed {
	return domain.Seed{
		Year:        c.Simulation.StartYear,
		GrazerCount: c.Simulation.Grazers,
		PestCount:   c.Simulation.Pests,
		CropHeight:  c.Simulation.CropHeight,
	}
}
