package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind names a job lifecycle signal.
type Kind string

const (
	JobStarted      Kind = "job.started"
	JobStopped      Kind = "job.stopped"
	WindowStarted   Kind = "job.window.started"
	BurnDone        Kind = "job.burn.done"
	Tick            Kind = "job.tick"
	WindowCompleted Kind = "job.window.completed"
	WaitStarted     Kind = "job.wait.started"
	ChainHalted     Kind = "job.chain.halted"
)

// Event is a lightweight, in-memory signal used to decouple the job core
// from its observers (metrics, tests).
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Kind  Kind
	Time  time.Time
	RunID string

	// Window is the 1-based Active window number within a run (0 for run-level events).
	Window int
	// Ticks is the tick counter: the tick's ordinal for Tick, the window total for WindowCompleted.
	Ticks int
	// Depth is the processing depth the window burned with.
	Depth float64
	// Took is the burn time for BurnDone and the wait length for WaitStarted.
	Took time.Duration

	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop returns a bus that drops everything.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch; recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
