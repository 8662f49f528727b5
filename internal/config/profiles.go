package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"video-upscaler/internal/domain"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Scaler names accepted in profiles.
const (
	ScalerApproxBiLinear = "approx-bilinear"
	ScalerBiLinear       = "bilinear"
	ScalerCatmullRom     = "catmull-rom"
)

// Profile tunes resampling and encoder speed for one quality tier.
type Profile struct {
	Scaler     string `yaml:"scaler"`
	X264Preset string `yaml:"x264Preset"`
	VP9Speed   int    `yaml:"vp9Speed"`
}

// Profiles maps every quality tier to its profile.
type Profiles struct {
	Fast     Profile `yaml:"fast"`
	Balanced Profile `yaml:"balanced"`
	High     Profile `yaml:"high"`
}

// For returns the profile for a quality tier, Balanced when unknown.
func (p Profiles) For(q domain.QualityPreset) Profile {
	switch q {
	case domain.QualityFast:
		return p.Fast
	case domain.QualityHigh:
		return p.High
	default:
		return p.Balanced
	}
}

// DefaultProfiles returns the embedded profiles.
func DefaultProfiles() Profiles {
	profiles, err := ParseProfiles(defaultProfilesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded profiles: %v", err))
	}
	return profiles
}

// LoadProfiles reads a profiles file, falling back to the embedded defaults
// when path is empty or missing.
func LoadProfiles(path string) (Profiles, error) {
	if path == "" {
		return DefaultProfiles(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProfiles(), nil
		}
		return Profiles{}, err
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes YAML profiles over the embedded defaults and
// validates scaler names.
func ParseProfiles(data []byte) (Profiles, error) {
	var profiles Profiles
	if err := yaml.Unmarshal(defaultProfilesYAML, &profiles); err != nil {
		return Profiles{}, fmt.Errorf("parse embedded profiles: %w", err)
	}
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return Profiles{}, fmt.Errorf("parse profiles: %w", err)
	}

	for name, p := range map[string]Profile{"fast": profiles.Fast, "balanced": profiles.Balanced, "high": profiles.High} {
		switch p.Scaler {
		case ScalerApproxBiLinear, ScalerBiLinear, ScalerCatmullRom:
		default:
			return Profiles{}, fmt.Errorf("profile %s: unknown scaler %q", name, p.Scaler)
		}
	}
	return profiles, nil
}
