package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"batchsim/internal/config"
	"batchsim/internal/control"
	"batchsim/internal/eventbus"
	"batchsim/internal/httpapi"
	"batchsim/internal/job"
	"batchsim/internal/metrics"
	"batchsim/internal/observability/pprof"
	rtsup "batchsim/internal/runtime/supervisor"
	logx "batchsim/pkg/logx"
)

// Options are the command-line overrides applied on top of the config file.
type Options struct {
	ConfigPath  string // empty runs on defaults
	Addr        string // overrides http.addr
	NoAutostart bool
}

type App struct {
	opts Options

	cfgm *config.Manager
	sup  *rtsup.Supervisor
	sd   notifier

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	metrics *metrics.Recorder
	ctl     *job.Controller
	http    *httpapi.Server
	control *control.Service
	pprof   *pprof.Service

	addr string
}

func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	bus := eventbus.New()
	rec := metrics.New()

	jobCfg, err := mapJobConfig(cfg)
	if err != nil {
		return nil, err
	}
	ctl, err := job.NewController(context.Background(), jobCfg,
		job.WithLogger(log.With(logx.String("comp", "job"))),
		job.WithBus(bus),
	)
	if err != nil {
		return nil, err
	}

	return &App{
		opts:    opts,
		cfgm:    cfgm,
		sd:      sdNotifier{},
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		metrics: rec,
		ctl:     ctl,
		http: httpapi.New(mapHTTPConfig(cfg), ctl, rec.Handler(), rec,
			log.With(logx.String("comp", "http"))),
		control: control.New(mapControlConfig(cfg), ctl, log.With(logx.String("comp", "control"))),
		pprof:   pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof"))),
	}, nil
}

// Controller exposes the job controller.
func (a *App) Controller() *job.Controller { return a.ctl }

// Addr is the bound HTTP address once Start returned.
func (a *App) Addr() string { return a.addr }

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start binds the HTTP listener and starts every background loop. A listen
// failure is returned as is; the host cannot run without its surface.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapJobConfig(cfg)
		return err
	})

	addr := httpAddr(cfg, a.opts.Addr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.sup.Cancel()
		return fmt.Errorf("http listen %s: %w", addr, err)
	}
	a.addr = ln.Addr().String()

	// Subscribe before anything can publish.
	events, unsubscribe := a.bus.Subscribe(256)
	a.sup.Go0("metrics.events", func(c context.Context) {
		defer unsubscribe()
		a.metrics.Run(c, events)
	})

	timeout := shutdownTimeout(cfg)
	a.sup.Go("http.serve", func(c context.Context) error {
		return a.http.Serve(c, ln, timeout)
	})

	a.pprof.Start(a.sup.Context())
	if err := a.control.Start(); err != nil {
		a.log.Warn("control schedules not started", logx.Err(err))
	}

	reload := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(reload)
		a.reloadLoop(c, reload)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if cfg.AutostartEnabled() && !a.opts.NoAutostart {
		a.ctl.Start()
	}

	a.notify(daemon.SdNotifyReady)
	a.sup.Go0("sd.watchdog", a.watchdog)

	a.log.Info("app started", logx.String("addr", a.addr), logx.Bool("job_running", a.ctl.IsRunning()))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the latest config of a burst
			for drained := false; !drained; {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					newCfg = newer
				default:
					drained = true
				}
			}
			a.apply(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))

	if jobCfg, err := mapJobConfig(next); err != nil {
		a.log.Warn("invalid job config; keeping previous", logx.Err(err))
	} else if err := a.ctl.Reconfigure(jobCfg); err != nil {
		a.log.Warn("job config rejected", logx.Err(err))
	}

	h := mapHTTPConfig(next)
	a.http.SetControlRate(h.ControlRatePerSec, h.ControlBurst)
	if httpAddr(prev, a.opts.Addr) != httpAddr(next, a.opts.Addr) {
		a.log.Warn("http.addr changed; restart required for it to take effect")
	}

	if err := a.control.Apply(mapControlConfig(next)); err != nil {
		a.log.Warn("invalid control config; keeping previous", logx.Err(err))
	}
	a.pprof.Reconfigure(ctx, mapPprofConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop halts the job and every background loop. Each step is bounded so a
// stuck component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify(daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.step(ctx, "control", time.Second, func(c context.Context) error { a.control.Stop(c); return nil })
	// A burn in progress is not interruptible; this step may run to its deadline.
	a.step(ctx, "job", 5*time.Second, a.ctl.Close)
	a.step(ctx, "pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	a.step(ctx, "supervisor", 6*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
