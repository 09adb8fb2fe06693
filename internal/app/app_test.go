package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchsim/internal/config"
)

type fakeNotifier struct {
	mu       sync.Mutex
	states   []string
	interval time.Duration
}

func (f *fakeNotifier) Notify(state string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return true, nil
}

func (f *fakeNotifier) WatchdogInterval() (time.Duration, error) { return f.interval, nil }

func (f *fakeNotifier) seen(state string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.states {
		if s == state {
			n++
		}
	}
	return n
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const testConfig = `{
	"job": {"duration_seconds": 1, "wait_seconds": 0, "interval_seconds": 1, "intensity": 0},
	"http": {"addr": "127.0.0.1:0"},
	"logging": {"level": "error", "console": false}
}`

func startApp(t *testing.T, opts Options) (*App, *fakeNotifier) {
	t.Helper()
	a, err := New(opts)
	require.NoError(t, err)
	sd := &fakeNotifier{}
	a.sd = sd
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a, sd
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStartAutostartsJobAndServes(t *testing.T) {
	a, sd := startApp(t, Options{ConfigPath: writeConfig(t, testConfig)})
	base := "http://" + a.Addr()

	assert.True(t, a.Controller().IsRunning())
	assert.Equal(t, 1, sd.seen(daemon.SdNotifyReady))

	assert.Equal(t, "ok", getJSON(t, base+"/health")["status"])
	st := getJSON(t, base+"/job")
	assert.Equal(t, true, st["running"])
	assert.Equal(t, 1.0, st["durationSeconds"])
	assert.Equal(t, 0.0, st["waitSeconds"])

	resp, err := http.Post(base+"/job/stop", "application/json", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.JSONEq(t, `{"changed":true,"running":false}`, string(body))

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		text := string(b)
		return strings.Contains(text, `app_job_starts_total{app="batchsim"} 1`) &&
			strings.Contains(text, `app_job_running{app="batchsim"} 0`)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestNoAutostartOverride(t *testing.T) {
	a, _ := startApp(t, Options{ConfigPath: writeConfig(t, testConfig), NoAutostart: true})
	assert.False(t, a.Controller().IsRunning())
}

func TestAutostartDisabledInConfig(t *testing.T) {
	cfg := strings.Replace(testConfig, `"intensity": 0}`, `"intensity": 0, "autostart": false}`, 1)
	a, _ := startApp(t, Options{ConfigPath: writeConfig(t, cfg)})
	assert.False(t, a.Controller().IsRunning())
}

func TestListenFailureIsFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a, err := New(Options{ConfigPath: writeConfig(t, testConfig), Addr: ln.Addr().String()})
	require.NoError(t, err)
	a.sd = &fakeNotifier{}

	err = a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http listen")
	assert.False(t, a.Controller().IsRunning())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{ConfigPath: writeConfig(t, `{"job": {"interval_seconds": -1}}`)})
	require.Error(t, err)
}

func TestStopNotifiesAndHaltsJob(t *testing.T) {
	a, err := New(Options{ConfigPath: writeConfig(t, testConfig)})
	require.NoError(t, err)
	sd := &fakeNotifier{}
	a.sd = sd
	require.NoError(t, a.Start(context.Background()))
	require.True(t, a.Controller().IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSIGTERM))

	assert.False(t, a.Controller().IsRunning())
	assert.Equal(t, 1, sd.seen(daemon.SdNotifyStopping))
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestWatchdogPings(t *testing.T) {
	a, err := New(Options{ConfigPath: writeConfig(t, testConfig), NoAutostart: true})
	require.NoError(t, err)
	sd := &fakeNotifier{interval: 40 * time.Millisecond}
	a.sd = sd

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.watchdog(ctx)
	}()
	require.Eventually(t, func() bool { return sd.seen(daemon.SdNotifyWatchdog) >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestApplyReconfiguresNextRun(t *testing.T) {
	a, _ := startApp(t, Options{ConfigPath: writeConfig(t, testConfig), NoAutostart: true})

	prev := a.cfgm.Get()
	next, err := config.Decode("c.json", []byte(`{
		"job": {"duration_seconds": 4, "wait_seconds": 2, "interval_seconds": 2, "intensity": 0},
		"http": {"addr": "127.0.0.1:0", "control_rate_per_sec": 1},
		"logging": {"level": "error", "console": false}
	}`))
	require.NoError(t, err)
	a.apply(context.Background(), prev, next)

	st := a.Controller().State()
	assert.Equal(t, 4.0, st.DurationSeconds)
	assert.Equal(t, 2.0, st.WaitSeconds)
	assert.Equal(t, 2.0, st.IntervalSeconds)
}

func TestMapJobConfigDefaults(t *testing.T) {
	cfg, err := mapJobConfig(config.Default())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Duration)
	assert.Equal(t, 5*time.Second, cfg.Wait)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, 1e8, cfg.Intensity)
}

func TestMapJobConfigRejectsExplicitZero(t *testing.T) {
	for _, body := range []string{
		`{"job": {"duration_seconds": 0}}`,
		`{"job": {"interval_seconds": 0}}`,
	} {
		cfg, err := config.Decode("c.json", []byte(body))
		require.NoError(t, err)
		_, err = mapJobConfig(cfg)
		assert.Error(t, err, body)
		assert.Error(t, cfg.Validate(), body)
	}

	_, err := New(Options{ConfigPath: writeConfig(t, `{"job": {"duration_seconds": 0}}`)})
	assert.Error(t, err)
}

func TestHTTPAddrPrecedence(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, ":3000", httpAddr(cfg, ""))
	cfg.HTTP.Addr = ":8080"
	assert.Equal(t, ":8080", httpAddr(cfg, ""))
	assert.Equal(t, ":9090", httpAddr(cfg, ":9090"))
}
