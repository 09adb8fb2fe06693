// Package control toggles the batch job on a cron timetable.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"batchsim/internal/config"
	logx "batchsim/pkg/logx"
)

// Job is the part of the controller a schedule drives.
type Job interface {
	Start() bool
	Stop() bool
}

// Config mirrors config.ControlConfig. Empty specs disable that edge.
type Config struct {
	StartCron string
	StopCron  string
	Timezone  string
}

func (c Config) empty() bool {
	return strings.TrimSpace(c.StartCron) == "" && strings.TrimSpace(c.StopCron) == ""
}

const (
	actionStart = "start"
	actionStop  = "stop"
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	job     Job
	log     logx.Logger
	started bool
	c       *cron.Cron
	entries map[string]cron.EntryID
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, job: job, log: log}
}

// Start registers the configured schedules. It is a no-op when already
// running or when no spec is set.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	return s.startLocked()
}

// Apply swaps the timetable. A running cron is rebuilt only when something
// changed; an invalid spec leaves the previous timetable in place.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	if _, _, err := build(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	if !s.started {
		return nil
	}
	s.stopLocked()
	return s.startLocked()
}

// Stop halts the timetable and waits for a firing action to return or ctx to end.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.started = false
	s.c = nil
	s.entries = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("control schedules stopped")
}

// Next returns the next firing time per action ("start", "stop").
func (s *Service) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	if s.c == nil {
		return out
	}
	for action, id := range s.entries {
		out[action] = s.c.Entry(id).Next
	}
	return out
}

func (s *Service) startLocked() error {
	if s.cfg.empty() {
		return nil
	}
	loc, specs, err := build(s.cfg)
	if err != nil {
		return err
	}
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)
	entries := make(map[string]cron.EntryID, len(specs))
	for action, spec := range specs {
		id, err := c.AddFunc(spec, func() { s.fire(action) })
		if err != nil {
			return fmt.Errorf("control.%s_cron: %w", action, err)
		}
		entries[action] = id
	}
	c.Start()
	s.c, s.entries = c, entries
	s.log.Info("control schedules started",
		logx.String("tz", loc.String()),
		logx.String("start_cron", strings.TrimSpace(s.cfg.StartCron)),
		logx.String("stop_cron", strings.TrimSpace(s.cfg.StopCron)),
	)
	return nil
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.entries = nil
}

func (s *Service) fire(action string) {
	var changed bool
	switch action {
	case actionStart:
		changed = s.job.Start()
	case actionStop:
		changed = s.job.Stop()
	}
	s.log.Info("control schedule fired", logx.String("action", action), logx.Bool("changed", changed))
}

func build(cfg Config) (*time.Location, map[string]string, error) {
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, nil, fmt.Errorf("control.timezone: %w", err)
		}
		loc = l
	}
	specs := map[string]string{}
	var errs []error
	for action, raw := range map[string]string{actionStart: cfg.StartCron, actionStop: cfg.StopCron} {
		spec := strings.TrimSpace(raw)
		if spec == "" {
			continue
		}
		if _, err := config.CronParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("control.%s_cron: %w", action, err))
			continue
		}
		specs[action] = spec
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return loc, specs, nil
}

// cronLogger routes cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
