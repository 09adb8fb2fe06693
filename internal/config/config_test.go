package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDecodeJSON(t *testing.T) {
	cfg, err := Decode("c.json", []byte(`{
		"job": {"duration_seconds": 3, "wait_seconds": 0, "interval_seconds": 1, "intensity": 0, "autostart": false},
		"http": {"addr": ":8080"}
	}`))
	require.NoError(t, err)

	require.NotNil(t, cfg.Job.DurationSeconds)
	assert.Equal(t, 3, *cfg.Job.DurationSeconds)
	require.NotNil(t, cfg.Job.WaitSeconds)
	assert.Equal(t, 0, *cfg.Job.WaitSeconds)
	require.NotNil(t, cfg.Job.Intensity)
	assert.Equal(t, 0.0, *cfg.Job.Intensity)
	assert.False(t, cfg.AutostartEnabled())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	// untouched sections keep their defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("c.yaml", []byte(`
job:
  duration_seconds: 20
  intensity: 1000
control:
  start_cron: "0 9 * * *"
  timezone: UTC
`))
	require.NoError(t, err)
	assert.Equal(t, 20, *cfg.Job.DurationSeconds)
	assert.Nil(t, cfg.Job.IntervalSeconds)
	assert.Equal(t, 1000.0, *cfg.Job.Intensity)
	assert.Equal(t, "0 9 * * *", cfg.Control.StartCron)
	assert.True(t, cfg.AutostartEnabled())
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("c.yml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]struct {
		name string
		body string
		want string
	}{
		"unknown json key": {name: "c.json", body: `{"jobs": {}}`, want: "unknown field"},
		"unknown yaml key": {name: "c.yaml", body: "job:\n  speed: 3\n", want: "unknown field"},
		"trailing json":    {name: "c.json", body: `{} {}`, want: "trailing data"},
		"wrong type":       {name: "c.json", body: `{"job": {"duration_seconds": "ten"}}`, want: "json config"},
		"broken yaml":      {name: "c.yaml", body: "job: [", want: "yaml config"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(tc.name, []byte(tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate(t *testing.T) {
	neg, zero := -1, 0
	negf, huge := -0.5, 1e17
	tests := map[string]struct {
		mutate func(c *Config)
		want   []string
	}{
		"defaults": {mutate: func(c *Config) {}},
		"job bounds": {
			mutate: func(c *Config) {
				c.Job.DurationSeconds = &neg
				c.Job.WaitSeconds = &neg
				c.Job.IntervalSeconds = &neg
				c.Job.Intensity = &negf
			},
			want: []string{"job.duration_seconds", "job.wait_seconds", "job.interval_seconds", "job.intensity"},
		},
		"explicit zero duration and interval": {
			mutate: func(c *Config) {
				c.Job.DurationSeconds = &zero
				c.Job.IntervalSeconds = &zero
			},
			want: []string{"job.duration_seconds must be > 0", "job.interval_seconds must be > 0"},
		},
		"zero wait and intensity": {
			mutate: func(c *Config) {
				f := 0.0
				c.Job.WaitSeconds = &zero
				c.Job.Intensity = &f
			},
		},
		"intensity beyond exact float range": {
			mutate: func(c *Config) { c.Job.Intensity = &huge },
			want:   []string{"job.intensity"},
		},
		"http": {
			mutate: func(c *Config) {
				c.HTTP.ControlRatePerSec = -1
				c.HTTP.ReadTimeout = "soon"
			},
			want: []string{"http.control_rate_per_sec", "http.read_timeout"},
		},
		"logging level": {
			mutate: func(c *Config) { c.Logging.Level = "loud" },
			want:   []string{"logging.level"},
		},
		"control": {
			mutate: func(c *Config) {
				c.Control.StartCron = "not a cron"
				c.Control.Timezone = "Mars/Olympus"
			},
			want: []string{"control.start_cron", "control.timezone"},
		},
		"valid control": {
			mutate: func(c *Config) {
				c.Control.StartCron = "@every 10m"
				c.Control.StopCron = "*/30 * * * * *"
				c.Control.Timezone = "Europe/Berlin"
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if len(tc.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tc.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestDurationOr(t *testing.T) {
	assert.Equal(t, 3*time.Second, DurationOr("", 3*time.Second))
	assert.Equal(t, 3*time.Second, DurationOr("bogus", 3*time.Second))
	assert.Equal(t, 250*time.Millisecond, DurationOr("250ms", 3*time.Second))
}

func TestManagerWithoutPathUsesDefaults(t *testing.T) {
	m := NewManager("")
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Same(t, cfg, m.Get())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestManagerLoadRejectsInvalid(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.json", `{"job": {"interval_seconds": -1}}`)
	_, err := NewManager(p).Load()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid config"))
}

func TestManagerWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"job": {"duration_seconds": 3}}`)

	m := NewManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// The first write may land before the watch is registered. Retries wait
	// past the debounce window so a rewrite never postpones a pending reload.
	var got *Config
	for attempt := 0; attempt < 5 && got == nil; attempt++ {
		require.NoError(t, os.WriteFile(p, []byte(`{"job": {"duration_seconds": 7}}`), 0o644))
		select {
		case got = <-sub:
		case <-time.After(4 * reloadDebounce):
		}
	}
	require.NotNil(t, got, "no reload published")

	assert.Equal(t, 7, *got.Job.DurationSeconds)
	assert.Equal(t, 7, *m.Get().Job.DurationSeconds)
}

func TestManagerReloadSkipsInvalidAndUnchanged(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"job": {"duration_seconds": 3}}`)
	m := NewManager(p)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(4)

	m.reload(context.Background())
	writeFile(t, dir, "c.json", `{"job": {"duration_seconds": -3}}`)
	m.reload(context.Background())
	assert.Empty(t, sub)
	assert.Equal(t, 3, *m.Get().Job.DurationSeconds)

	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		return assert.AnError
	})
	writeFile(t, dir, "c.json", `{"job": {"duration_seconds": 4}}`)
	m.reload(context.Background())
	assert.Empty(t, sub)

	m.SetValidator(nil)
	m.reload(context.Background())
	require.Len(t, sub, 1)
	assert.Equal(t, 4, *(<-sub).Job.DurationSeconds)
}

func TestPublishKeepsLatest(t *testing.T) {
	m := NewManager("")
	sub := m.Subscribe(1)
	a, b := Default(), Default()
	b.HTTP.Addr = ":1"

	m.publish(a)
	m.publish(b)
	require.Len(t, sub, 1)
	assert.Same(t, b, <-sub)

	m.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := Default()
	newCfg := Default()

	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Empty(t, sections)
	assert.Empty(t, attrs)

	wait := 0
	newCfg.Job.WaitSeconds = &wait
	newCfg.Control.StopCron = "@hourly"
	newCfg.Pprof.Token = "secret"
	sections, attrs = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"control", "job", "pprof"}, sections)
	assert.NotEmpty(t, attrs)

	// Token value changes alone are not reported.
	other := *newCfg
	other.Pprof.Token = "rotated"
	sections, _ = SummarizeConfigChange(newCfg, &other)
	assert.Empty(t, sections)
}
