package config

import (
	"sort"
	"strings"

	logx "batchsim/pkg/logx"
)

// SummarizeConfigChange returns the changed section names (sorted) and safe
// structured fields describing the new values. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	oj, nj := oldCfg.Job, newCfg.Job
	if oldCfg.AutostartEnabled() != newCfg.AutostartEnabled() ||
		intOr(oj.DurationSeconds, -1) != intOr(nj.DurationSeconds, -1) ||
		intOr(oj.WaitSeconds, -1) != intOr(nj.WaitSeconds, -1) ||
		intOr(oj.IntervalSeconds, -1) != intOr(nj.IntervalSeconds, -1) ||
		floatOr(oj.Intensity, -1) != floatOr(nj.Intensity, -1) {
		changed = append(changed, "job")
		attrs = append(attrs,
			logx.Bool("job.autostart", newCfg.AutostartEnabled()),
			logx.Int("job.duration_seconds", intOr(nj.DurationSeconds, -1)),
			logx.Int("job.wait_seconds", intOr(nj.WaitSeconds, -1)),
			logx.Int("job.interval_seconds", intOr(nj.IntervalSeconds, -1)),
			logx.Float64("job.intensity", floatOr(nj.Intensity, -1)),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Int("http.control_rate_per_sec", newCfg.HTTP.ControlRatePerSec),
			logx.Int("http.control_burst", newCfg.HTTP.ControlBurst),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Compare the token by presence only.
	op, np := oldCfg.Pprof, newCfg.Pprof
	tokenChanged := (strings.TrimSpace(op.Token) != "") != (strings.TrimSpace(np.Token) != "")
	op.Token, np.Token = "", ""
	if op != np || tokenChanged {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(np.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", np.AllowInsecure),
		)
	}

	if oldCfg.Control != newCfg.Control {
		changed = append(changed, "control")
		attrs = append(attrs,
			logx.String("control.start_cron", strings.TrimSpace(newCfg.Control.StartCron)),
			logx.String("control.stop_cron", strings.TrimSpace(newCfg.Control.StopCron)),
			logx.String("control.timezone", strings.TrimSpace(newCfg.Control.Timezone)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
