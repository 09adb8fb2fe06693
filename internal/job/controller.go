package job

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"batchsim/internal/eventbus"
	rtsup "batchsim/internal/runtime/supervisor"
	logx "batchsim/pkg/logx"
)

// Controller owns the run state of the batch job and exposes the host's
// control surface. One Controller per process; at most one cycle chain runs
// under it at a time.
type Controller struct {
	mu sync.Mutex

	cfg    Config // applied to the next run
	runCfg Config // the active run's config

	log      logx.Logger
	bus      eventbus.Bus
	clock    clock.WithTicker
	burn     func(n float64) float64
	pipeline *Pipeline
	sup      *rtsup.Supervisor

	running   atomic.Bool
	depth     atomic.Uint64 // float64 bits
	runID     string
	startedAt time.Time
	cancel    context.CancelFunc
	// chainDone is closed when the most recently started chain returns.
	chainDone chan struct{}
}

type Option func(*Controller)

func WithLogger(log logx.Logger) Option { return func(c *Controller) { c.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(c *Controller) { c.bus = bus } }

// WithClock replaces the wall clock driving windows, ticks and waits.
func WithClock(clk clock.WithTicker) Option { return func(c *Controller) { c.clock = clk } }

// WithLoadGenerator replaces Burn.
func WithLoadGenerator(fn func(n float64) float64) Option {
	return func(c *Controller) { c.burn = fn }
}

// NewController validates cfg and returns an idle controller. Cycle chains
// run under a supervisor derived from ctx; cancelling ctx halts them.
func NewController(ctx context.Context, cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.bus == nil {
		c.bus = eventbus.Nop()
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.burn == nil {
		c.burn = Burn
	}
	c.pipeline = NewPipeline(c.clock)
	c.sup = rtsup.New(ctx, rtsup.WithLogger(c.log))
	c.setDepth(BaselineDepth)
	return c, nil
}

// Start begins a run. It reports false (and only logs) when a run is
// already active.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		c.log.Info("data processing job is already running", logx.String("run_id", c.runID))
		return false
	}
	parent := c.sup.Context()
	if parent.Err() != nil {
		c.log.Warn("data processing job not started: controller closed")
		return false
	}

	cfg := c.cfg
	ctx, cancel := context.WithCancel(parent)
	c.runCfg = cfg
	c.runID = uuid.NewString()
	c.startedAt = c.clock.Now()
	c.cancel = cancel
	c.setDepth(cfg.Intensity)
	c.running.Store(true)

	log := c.log.With(logx.String("run_id", c.runID))
	log.Info("starting data processing job",
		logx.Duration("duration", cfg.Duration),
		logx.Duration("wait", cfg.Wait),
		logx.Duration("interval", cfg.Interval),
		logx.Float64("intensity", cfg.Intensity),
	)
	c.bus.Publish(eventbus.Event{Kind: eventbus.JobStarted, Time: c.startedAt, RunID: c.runID, Depth: cfg.Intensity})

	done := make(chan struct{})
	ch := &chain{
		runID:    c.runID,
		cfg:      cfg,
		prev:     c.chainDone,
		done:     done,
		ctl:      c,
		log:      log,
		bus:      c.bus,
		clock:    c.clock,
		pipeline: c.pipeline,
		burn:     c.burn,
	}
	c.chainDone = done
	c.sup.Go0("job.cycle", func(context.Context) { ch.run(ctx) })
	return true
}

// Stop ends the current run. In-flight work is not interrupted: a running
// burn finishes, but no further tick, wait or window begins.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() bool {
	if !c.running.Load() {
		c.log.Info("data processing job is not running")
		return false
	}
	runID := c.runID
	c.log.Info("stopping data processing job", logx.String("run_id", runID))

	c.running.Store(false)
	c.setDepth(BaselineDepth)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.runID = ""
	c.startedAt = time.Time{}
	c.bus.Publish(eventbus.Event{Kind: eventbus.JobStopped, Time: c.clock.Now(), RunID: runID, Depth: BaselineDepth})
	return true
}

func (c *Controller) IsRunning() bool { return c.running.Load() }

func (c *Controller) ProcessingDepth() float64 {
	return math.Float64frombits(c.depth.Load())
}

func (c *Controller) setDepth(v float64) { c.depth.Store(math.Float64bits(v)) }

// Reconfigure replaces the config used by the next Start. The active run
// keeps the config it started with.
func (c *Controller) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.log.Info("job config updated; applies to next run",
		logx.Duration("duration", cfg.Duration),
		logx.Duration("wait", cfg.Wait),
		logx.Duration("interval", cfg.Interval),
		logx.Float64("intensity", cfg.Intensity),
	)
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.cfg
	st := State{Running: c.running.Load(), ProcessingDepth: c.ProcessingDepth()}
	if st.Running {
		cfg = c.runCfg
		st.RunID = c.runID
		st.StartedAt = c.startedAt
	}
	st.DurationSeconds = cfg.Duration.Seconds()
	st.WaitSeconds = cfg.Wait.Seconds()
	st.IntervalSeconds = cfg.Interval.Seconds()
	st.Intensity = cfg.Intensity
	return st
}

// Close stops any run and waits for the cycle goroutine to return. A burn
// in progress is waited for (bounded by ctx).
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.running.Load() {
		c.stopLocked()
	}
	c.mu.Unlock()
	return c.sup.Stop(ctx)
}
