// Package platform wires the interrupt subsystem together: it builds the
// bus fabric, the interrupt files and the domain controller from a geometry
// configuration and hands the harness a transactor onto the result.
package platform

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/aia/internal/aplic"
	"github.com/tinyrange/aia/internal/imsic"
)

// Config is the platform geometry. The zero value is not usable; start from
// DefaultConfig or a YAML file.
type Config struct {
	Harts int `yaml:"harts"`

	// BusCycles overrides the transactor handshake budget when positive.
	BusCycles int `yaml:"busCycles,omitempty"`

	APLIC APLICConfig `yaml:"aplic"`
	IMSIC IMSICConfig `yaml:"imsic"`
}

// APLICConfig locates the domain controller.
type APLICConfig struct {
	Base    uint64 `yaml:"base"`
	Sources int    `yaml:"sources"`

	// DirectMachine/DirectSupervisor switch the corresponding domain to
	// direct-wire delivery instead of MSI.
	DirectMachine    bool `yaml:"directMachine,omitempty"`
	DirectSupervisor bool `yaml:"directSupervisor,omitempty"`
}

// IMSICConfig locates the interrupt-file directories.
type IMSICConfig struct {
	MachineBase    uint64 `yaml:"machineBase"`
	SupervisorBase uint64 `yaml:"supervisorBase"`
	Guests         int    `yaml:"guests"`
}

// DefaultConfig is the reference geometry the verification sequences were
// recorded against.
func DefaultConfig() Config {
	return Config{
		Harts: 4,
		APLIC: APLICConfig{
			Base:    0x1996_0000,
			Sources: 63,
		},
		IMSIC: IMSICConfig{
			MachineBase:    0x6100_0000,
			SupervisorBase: 0x8290_0000,
			Guests:         4,
		},
	}
}

// Load reads and validates a YAML platform config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("platform: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("platform: parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("platform: config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the geometry for internal consistency.
func (c Config) Validate() error {
	if c.Harts < 1 {
		return fmt.Errorf("harts must be at least 1, got %d", c.Harts)
	}
	if c.APLIC.Sources < 1 || c.APLIC.Sources > aplic.MaxSources {
		return fmt.Errorf("aplic sources must be 1..%d, got %d", aplic.MaxSources, c.APLIC.Sources)
	}
	if c.IMSIC.Guests < 0 || c.IMSIC.Guests > imsic.MaxGuests {
		return fmt.Errorf("imsic guests must be 0..%d, got %d", imsic.MaxGuests, c.IMSIC.Guests)
	}

	type region struct {
		name       string
		base, size uint64
	}
	machineSpan := uint64(c.Harts) * imsic.PageSize
	supervisorSpan := uint64(c.Harts) * uint64(1+c.IMSIC.Guests) * imsic.PageSize
	regions := []region{
		{"aplic", c.APLIC.Base, 2 * aplic.DomainWindowSize},
		{"imsic machine", c.IMSIC.MachineBase, machineSpan},
		{"imsic supervisor", c.IMSIC.SupervisorBase, supervisorSpan},
	}
	for i, a := range regions {
		for _, b := range regions[i+1:] {
			if a.base < b.base+b.size && b.base < a.base+a.size {
				return fmt.Errorf("%s window [0x%x,0x%x) overlaps %s window [0x%x,0x%x)",
					a.name, a.base, a.base+a.size, b.name, b.base, b.base+b.size)
			}
		}
	}
	return nil
}
