package job

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultDuration  = 10 * time.Second
	DefaultWait      = 5 * time.Second
	DefaultInterval  = 1 * time.Second
	DefaultIntensity = 1e8

	// BaselineDepth is the processing depth while no run is active.
	BaselineDepth = 1.0

	// MaxIntensity is the largest depth Burn can count to exactly in float64.
	MaxIntensity = 1 << 53
)

// Config is fixed for the lifetime of one run.
type Config struct {
	// Duration is the length of an Active window.
	Duration time.Duration
	// Wait is the idle gap between Active windows.
	Wait time.Duration
	// Interval is the tick period inside an Active window.
	Interval time.Duration
	// Intensity scales the load generator (number of burn iterations).
	Intensity float64
}

func DefaultConfig() Config {
	return Config{
		Duration:  DefaultDuration,
		Wait:      DefaultWait,
		Interval:  DefaultInterval,
		Intensity: DefaultIntensity,
	}
}

var (
	ErrDuration  = errors.New("duration must be > 0")
	ErrWait      = errors.New("wait must be >= 0")
	ErrInterval  = errors.New("interval must be > 0")
	ErrIntensity = errors.New("intensity must be in [0, 2^53]")
)

func (c Config) Validate() error {
	switch {
	case c.Duration <= 0:
		return fmt.Errorf("job: %w (got %s)", ErrDuration, c.Duration)
	case c.Wait < 0:
		return fmt.Errorf("job: %w (got %s)", ErrWait, c.Wait)
	case c.Interval <= 0:
		return fmt.Errorf("job: %w (got %s)", ErrInterval, c.Interval)
	case !(c.Intensity >= 0 && c.Intensity <= MaxIntensity):
		return fmt.Errorf("job: %w (got %g)", ErrIntensity, c.Intensity)
	}
	return nil
}

// State is a point-in-time view of the controller.
type State struct {
	Running         bool      `json:"running"`
	ProcessingDepth float64   `json:"processingDepth"`
	RunID           string    `json:"runId,omitempty"`
	StartedAt       time.Time `json:"startedAt,omitempty"`

	DurationSeconds float64 `json:"durationSeconds"`
	WaitSeconds     float64 `json:"waitSeconds"`
	IntervalSeconds float64 `json:"intervalSeconds"`
	Intensity       float64 `json:"intensity"`
}
