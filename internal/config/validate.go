package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"batchsim/internal/job"
	logx "batchsim/pkg/logx"
)

// CronParser is shared by validation and the control scheduler so both
// accept the same spec grammar.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks static constraints. It does not touch the network or disk.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	j := c.Job
	if j.DurationSeconds != nil && *j.DurationSeconds <= 0 {
		errs = append(errs, errors.New("job.duration_seconds must be > 0"))
	}
	if j.WaitSeconds != nil && *j.WaitSeconds < 0 {
		errs = append(errs, errors.New("job.wait_seconds must be >= 0"))
	}
	if j.IntervalSeconds != nil && *j.IntervalSeconds <= 0 {
		errs = append(errs, errors.New("job.interval_seconds must be > 0"))
	}
	if j.Intensity != nil && !(*j.Intensity >= 0 && *j.Intensity <= job.MaxIntensity) {
		errs = append(errs, fmt.Errorf("job.intensity must be in [0, %g]", float64(job.MaxIntensity)))
	}

	if c.HTTP.ControlRatePerSec < 0 {
		errs = append(errs, errors.New("http.control_rate_per_sec must be >= 0"))
	}
	if c.HTTP.ControlBurst < 0 {
		errs = append(errs, errors.New("http.control_burst must be >= 0"))
	}
	for path, raw := range map[string]string{
		"http.read_timeout":     c.HTTP.ReadTimeout,
		"http.write_timeout":    c.HTTP.WriteTimeout,
		"http.shutdown_timeout": c.HTTP.ShutdownTimeout,
		"pprof.read_timeout":    c.Pprof.ReadTimeout,
		"pprof.write_timeout":   c.Pprof.WriteTimeout,
		"pprof.idle_timeout":    c.Pprof.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}

	if tz := strings.TrimSpace(c.Control.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("control.timezone: invalid %q: %w", tz, err))
		}
	}
	for path, spec := range map[string]string{
		"control.start_cron": c.Control.StartCron,
		"control.stop_cron":  c.Control.StopCron,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, err := CronParser.Parse(strings.TrimSpace(spec)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}
