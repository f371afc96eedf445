package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"grain_sim/internal/domain"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[simulation]
start_year = 2030
horizon_year = 2031
pests = 40
seed = 7

[output]
db_path = ""

[log]
level = "debug"
trace_phases = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 2030, cfg.Simulation.StartYear)
	require.Equal(t, 2031, cfg.Simulation.HorizonYear)
	require.Equal(t, 40, cfg.Simulation.Pests)
	require.Equal(t, 1, cfg.Simulation.Grazers, "unset keys keep their default")
	require.Equal(t, int64(7), cfg.Simulation.Seed)
	require.Equal(t, domain.PartyCount, cfg.Simulation.PartyCount)
	require.Empty(t, cfg.Output.DBPath)
	require.Equal(t, "grain_sim.txt", cfg.Output.TSVPath)
	require.True(t, cfg.Log.TracePhases)
	require.Equal(t, path, cfg.Path)
	require.Contains(t, cfg.Raw, "simulation")

	require.Equal(t, domain.Seed{Year: 2030, GrazerCount: 1, PestCount: 40, CropHeight: 1.0}, cfg.WorldSeed())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"horizon before start": func(c *Config) { c.Simulation.HorizonYear = c.Simulation.StartYear - 1 },
		"negative grazers":     func(c *Config) { c.Simulation.Grazers = -1 },
		"negative pests":       func(c *Config) { c.Simulation.Pests = -1 },
		"negative height":      func(c *Config) { c.Simulation.CropHeight = -0.5 },
		"wrong party count":    func(c *Config) { c.Simulation.PartyCount = 3 },
		"no tsv path":          func(c *Config) { c.Output.TSVPath = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
