package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// renderConfig mirrors the command line flags; a YAML file can set any
// of these, but explicitly given flags always win.
type renderConfig struct {
	Output        string  `yaml:"output"`
	SampleRate    int     `yaml:"samplerate"`
	Channels      int     `yaml:"channels"`
	Polyphony     int     `yaml:"polyphony"`
	Instances     int     `yaml:"instances"`
	NoLimiter     bool    `yaml:"nolimiter"`
	Earrape       bool    `yaml:"earrape"`
	Headless      bool    `yaml:"headless"`
	LogIntervalMS int     `yaml:"loginterval"`
	Speed         float64 `yaml:"speed"`
	Play          bool    `yaml:"play"`
	Samples       string  `yaml:"samples"`
	SampleFormat  string  `yaml:"sampleformat"`
}

func defaultConfig() renderConfig {
	return renderConfig{
		SampleRate:    48000,
		Channels:      2,
		Polyphony:     512,
		Instances:     1,
		LogIntervalMS: 1000,
		SampleFormat:  "{key}.wav",
	}
}

func (c *renderConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file %v: %v", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("could not parse config file %v: %v", path, err)
	}
	return nil
}

func (c *renderConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("channel count must be 1 or 2, got %v", c.Channels)
	}
	if c.Polyphony < 1 {
		return fmt.Errorf("polyphony must be at least 1, got %v", c.Polyphony)
	}
	if c.LogIntervalMS < 1 {
		return fmt.Errorf("log interval must be at least 1 ms, got %v", c.LogIntervalMS)
	}
	// speeds between zero and realtime make no sense; treat as realtime
	if c.Speed > 0 && c.Speed < 1 {
		c.Speed = 1
	}
	return nil
}
