// Package config loads the scheduler's YAML configuration, keeping
// the option names spec.md §6.4 calls out for compatibility (size,
// hostfile, simulation_mode, run_remote, UPDATE_THREAD_TIMEOUT,
// TEMP_RESERVATION_TIME), following the teacher's gopkg.in/yaml.v3
// struct-tag convention from cmd/warren/apply.go.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized scheduler options.
type Config struct {
	Size                int    `yaml:"size"`
	Hostfile            string `yaml:"hostfile"`
	SimulationMode      bool   `yaml:"simulation_mode"`
	RunRemote           bool   `yaml:"run_remote"`
	UpdateThreadTimeout int    `yaml:"UPDATE_THREAD_TIMEOUT"`
	TempReservationTime int    `yaml:"TEMP_RESERVATION_TIME"`
}

// Defaults returns a Config with the original module-level defaults:
// UPDATE_THREAD_TIMEOUT=10, TEMP_RESERVATION_TIME=300.
func Defaults() Config {
	return Config{
		UpdateThreadTimeout: 10,
		TempReservationTime: 300,
	}
}

// Load reads and parses a YAML config file, filling in defaults for
// any option the file omits.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.UpdateThreadTimeout <= 0 {
		cfg.UpdateThreadTimeout = 10
	}
	if cfg.TempReservationTime <= 0 {
		cfg.TempReservationTime = 300
	}
	return cfg, nil
}

// RefreshInterval returns UpdateThreadTimeout as a Duration.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.UpdateThreadTimeout) * time.Second
}

// TempReservation returns TempReservationTime as a Duration.
func (c Config) TempReservation() time.Duration {
	return time.Duration(c.TempReservationTime) * time.Second
}

// LoadHostfile reads a newline-delimited list of node names, skipping
// blank lines and '#'-prefixed comments.
func LoadHostfile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hostfile %s: %w", path, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read hostfile %s: %w", path, err)
	}
	return names, nil
}
