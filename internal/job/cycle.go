package job

import (
	"context"

	"k8s.io/utils/clock"

	"batchsim/internal/eventbus"
	logx "batchsim/pkg/logx"
)

// chain is one Active -> Waiting -> Active ... sequence started by a single
// Controller.Start. It runs on one goroutine which owns every timer; the load
// generator and the ticks execute strictly one after another on it.
type chain struct {
	runID string
	cfg   Config

	// prev is closed when the previous chain has returned; done is closed
	// when this one has. Chains therefore never burn or tick concurrently.
	prev <-chan struct{}
	done chan struct{}

	ctl      *Controller
	log      logx.Logger
	bus      eventbus.Bus
	clock    clock.WithTicker
	pipeline *Pipeline
	burn     func(n float64) float64
}

// alive is the cooperative cancellation check made before every tick, wait
// and window. A cancelled ctx also covers a Stop followed by a new Start.
func (ch *chain) alive(ctx context.Context) bool {
	return ctx.Err() == nil && ch.ctl.running.Load()
}

func (ch *chain) run(ctx context.Context) {
	defer close(ch.done)
	if ch.prev != nil {
		// The previous chain's ctx is already cancelled; it returns once its
		// in-flight burn finishes.
		<-ch.prev
	}

	window := 0
	defer func() {
		ch.log.Info("data processing chain halted", logx.Int("windows", window))
		ch.publish(eventbus.Event{Kind: eventbus.ChainHalted, Window: window})
	}()

	for ch.alive(ctx) {
		window++
		ticks, ok := ch.activeWindow(ctx, window)
		if !ok {
			return
		}
		ch.log.Info("data processing cycle completed",
			logx.Int("window", window),
			logx.Int("batches", ticks),
		)
		ch.publish(eventbus.Event{Kind: eventbus.WindowCompleted, Window: window, Ticks: ticks})

		if !ch.wait(ctx, window) {
			return
		}
	}
}

// activeWindow runs one Active window and returns the number of ticks that
// fired. ok is false when the run was stopped mid-window.
func (ch *chain) activeWindow(ctx context.Context, window int) (ticks int, ok bool) {
	start := ch.clock.Now()
	depth := ch.ctl.ProcessingDepth()
	ch.log.Info("starting data processing cycle",
		logx.Int("window", window),
		logx.Duration("duration", ch.cfg.Duration),
		logx.Duration("interval", ch.cfg.Interval),
	)

	ticker := ch.clock.NewTicker(ch.cfg.Interval)
	defer ticker.Stop()
	ch.publish(eventbus.Event{Kind: eventbus.WindowStarted, Window: window, Depth: depth})

	// The burn runs inline and its wall time counts against this window.
	// Ticker fires missed meanwhile collapse into one.
	burnStart := ch.clock.Now()
	checksum := ch.burn(depth)
	took := ch.clock.Since(burnStart)
	ch.log.Debug("load generator finished",
		logx.Int("window", window),
		logx.Float64("depth", depth),
		logx.Float64("checksum", checksum),
		logx.Duration("took", took),
	)
	ch.publish(eventbus.Event{Kind: eventbus.BurnDone, Window: window, Depth: depth, Took: took, Data: checksum})

	if !ch.alive(ctx) {
		return 0, false
	}
	if ch.clock.Since(start) >= ch.cfg.Duration {
		return 0, true
	}

	for {
		select {
		case <-ctx.Done():
			return ticks, false
		case <-ticker.C():
		}
		if !ch.alive(ctx) {
			return ticks, false
		}

		// Granularity is one interval: a trailing partial slice never ticks.
		elapsed := ch.clock.Since(start).Truncate(ch.cfg.Interval)
		if elapsed > ch.cfg.Duration {
			return ticks, true
		}
		ticks++
		ch.tick(window, ticks)
		if elapsed >= ch.cfg.Duration {
			return ticks, true
		}
	}
}

func (ch *chain) tick(window, n int) {
	batch := ch.pipeline.Run()
	ch.log.Info("data batch processed",
		logx.Int("window", window),
		logx.Int("batch", n),
		logx.Float64("total_value", batch.TotalValue),
		logx.Any("by_category", batch.ByCategory),
		logx.Any("expensive_items", batch.ExpensiveItems),
		logx.Any("summary", batch.Summary),
	)
	ch.publish(eventbus.Event{Kind: eventbus.Tick, Window: window, Ticks: n, Data: batch})
}

// wait runs the Waiting phase and reports whether the next window may start.
func (ch *chain) wait(ctx context.Context, window int) bool {
	if !ch.alive(ctx) {
		return false
	}
	ch.log.Info("waiting before next cycle", logx.Duration("wait", ch.cfg.Wait))
	if ch.cfg.Wait <= 0 {
		ch.publish(eventbus.Event{Kind: eventbus.WaitStarted, Window: window})
		return ch.alive(ctx)
	}

	timer := ch.clock.NewTimer(ch.cfg.Wait)
	defer timer.Stop()
	ch.publish(eventbus.Event{Kind: eventbus.WaitStarted, Window: window, Took: ch.cfg.Wait})

	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
	}
	return ch.alive(ctx)
}

func (ch *chain) publish(e eventbus.Event) {
	e.RunID = ch.runID
	if e.Time.IsZero() {
		e.Time = ch.clock.Now()
	}
	ch.bus.Publish(e)
}
