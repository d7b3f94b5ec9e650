package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/sawpanic/earnrun/internal/domain/fundamentals"
	"github.com/sawpanic/earnrun/internal/domain/ranking"
)

// WeightsConfig holds named score-weight profiles
type WeightsConfig struct {
	Active   string                   `yaml:"active_profile"`
	Profiles map[string]WeightProfile `yaml:"profiles"`
}

// WeightProfile is one set of scoring weights
type WeightProfile struct {
	Description  string               `yaml:"description"`
	Fundamentals fundamentals.Weights `yaml:"fundamentals"`
	Blend        ranking.Blend        `yaml:"blend"`
}

// DefaultWeights returns the single built-in profile
func DefaultWeights() *WeightsConfig {
	return &WeightsConfig{
		Active: "default",
		Profiles: map[string]WeightProfile{
			"default": {
				Description:  "EPS-led fundamentals, 70/30 price/fundamental blend",
				Fundamentals: fundamentals.DefaultWeights(),
				Blend:        ranking.DefaultBlend(),
			},
		},
	}
}

// LoadWeights loads weight profiles from a YAML file. An empty path yields
// the built-in profile.
func LoadWeights(path string) (*WeightsConfig, error) {
	if path == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file %s: %w", path, err)
	}

	var wc WeightsConfig
	if err := yaml.Unmarshal(data, &wc); err != nil {
		return nil, fmt.Errorf("failed to parse weights YAML: %w", err)
	}

	if err := wc.Validate(); err != nil {
		return nil, err
	}
	return &wc, nil
}

// Validate checks the active profile exists and every profile sums to 1
func (wc *WeightsConfig) Validate() error {
	if len(wc.Profiles) == 0 {
		return fmt.Errorf("%w: no weight profiles defined", ErrInvalid)
	}
	if _, ok := wc.Profiles[wc.Active]; !ok {
		return fmt.Errorf("%w: active profile %q not found (have %v)", ErrInvalid, wc.Active, wc.Names())
	}
	for _, name := range wc.Names() {
		p := wc.Profiles[name]
		if err := p.Fundamentals.Validate(); err != nil {
			return fmt.Errorf("%w: profile %s: %v", ErrInvalid, name, err)
		}
		if err := p.Blend.Validate(); err != nil {
			return fmt.Errorf("%w: profile %s: %v", ErrInvalid, name, err)
		}
	}
	return nil
}

// Names returns the profile names sorted
func (wc *WeightsConfig) Names() []string {
	names := make([]string, 0, len(wc.Profiles))
	for name := range wc.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveProfile returns the selected profile
func (wc *WeightsConfig) ActiveProfile() (WeightProfile, error) {
	p, ok := wc.Profiles[wc.Active]
	if !ok {
		return WeightProfile{}, fmt.Errorf("active profile %q not found", wc.Active)
	}
	return p, nil
}
