package app

import (
	"fmt"
	"strings"
	"time"

	"batchsim/internal/config"
	"batchsim/internal/control"
	"batchsim/internal/httpapi"
	"batchsim/internal/job"
	"batchsim/internal/observability/pprof"
	logx "batchsim/pkg/logx"
)

const defaultHTTPAddr = ":3000"

// mapJobConfig applies the job defaults to unset seconds fields. Set fields
// are taken as is, so an explicit 0 fails validation.
func mapJobConfig(cfg *config.Config) (job.Config, error) {
	out := job.DefaultConfig()
	if cfg == nil {
		return out, nil
	}
	j := cfg.Job
	if j.DurationSeconds != nil {
		out.Duration = time.Duration(*j.DurationSeconds) * time.Second
	}
	if j.WaitSeconds != nil {
		out.Wait = time.Duration(*j.WaitSeconds) * time.Second
	}
	if j.IntervalSeconds != nil {
		out.Interval = time.Duration(*j.IntervalSeconds) * time.Second
	}
	if j.Intensity != nil {
		out.Intensity = *j.Intensity
	}
	if err := out.Validate(); err != nil {
		return job.Config{}, fmt.Errorf("job config: %w", err)
	}
	return out, nil
}

// mapHTTPConfig expects a validated config; bad durations fall back to defaults.
func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	h := cfg.HTTP
	rps := h.ControlRatePerSec
	if rps == 0 {
		rps = 5
	}
	return httpapi.Config{
		ControlRatePerSec: rps,
		ControlBurst:      h.ControlBurst,
		ReadTimeout:       config.DurationOr(h.ReadTimeout, 10*time.Second),
		WriteTimeout:      config.DurationOr(h.WriteTimeout, 10*time.Second),
	}
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	return config.DurationOr(cfg.HTTP.ShutdownTimeout, 5*time.Second)
}

func httpAddr(cfg *config.Config, override string) string {
	if a := strings.TrimSpace(override); a != "" {
		return a
	}
	if a := strings.TrimSpace(cfg.HTTP.Addr); a != "" {
		return a
	}
	return defaultHTTPAddr
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapControlConfig(cfg *config.Config) control.Config {
	return control.Config{
		StartCron: cfg.Control.StartCron,
		StopCron:  cfg.Control.StopCron,
		Timezone:  cfg.Control.Timezone,
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	p := cfg.Pprof
	return pprof.Config{
		Enabled:              p.Enabled,
		Addr:                 p.Addr,
		Prefix:               p.Prefix,
		Token:                p.Token,
		AllowInsecure:        p.AllowInsecure,
		ReadTimeout:          config.DurationOr(p.ReadTimeout, 5*time.Second),
		WriteTimeout:         config.DurationOr(p.WriteTimeout, 0),
		IdleTimeout:          config.DurationOr(p.IdleTimeout, 120*time.Second),
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
	}
}
