package config

// Config is the on-disk configuration (JSON or YAML).
//
// Every section is optional; omitted fields take the defaults documented on
// each type. Unknown keys are rejected.
type Config struct {
	Job     JobConfig     `json:"job"`
	HTTP    HTTPConfig    `json:"http"`
	Logging LoggingConfig `json:"logging"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`
	Control ControlConfig `json:"control,omitempty"`
}

// JobConfig controls the batch job cycle.
//
// Defaults:
//   - autostart: true (start the job once the HTTP listener is up)
//   - duration_seconds: 10 (must be > 0 when set)
//   - wait_seconds: 5 (0 is allowed)
//   - interval_seconds: 1 (must be > 0 when set)
//   - intensity: 1e8 (0 is allowed)
//
// Changes picked up by hot-reload apply to the next start.
type JobConfig struct {
	Autostart       *bool    `json:"autostart,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	WaitSeconds     *int     `json:"wait_seconds,omitempty"`
	IntervalSeconds *int     `json:"interval_seconds,omitempty"`
	Intensity       *float64 `json:"intensity,omitempty"`
}

// HTTPConfig controls the host listener (health, metrics, job control).
//
// Durations are Go duration strings (e.g. "5s").
type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // default ":3000"

	// ControlRatePerSec limits POST /job/start and /job/stop. Default 5.
	ControlRatePerSec int `json:"control_rate_per_sec,omitempty"`
	ControlBurst      int `json:"control_burst,omitempty"` // default = rate

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// ControlConfig toggles the job on a timetable.
//
// Specs accept 5 or 6 fields (optional seconds) and descriptors such as
// "@hourly" or "@every 10m". Empty disables that edge.
type ControlConfig struct {
	StartCron string `json:"start_cron,omitempty"`
	StopCron  string `json:"stop_cron,omitempty"`
	Timezone  string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
}

// Default returns the config used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// AutostartEnabled reports job.autostart with its default applied.
func (c *Config) AutostartEnabled() bool {
	if c == nil || c.Job.Autostart == nil {
		return true
	}
	return *c.Job.Autostart
}
