package frame

import "sync"

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Loop runs fn once per display frame between Start and Stop. Each
// iteration requests its own continuation, so at most one continuation is
// ever pending and the loop is paced by the host's frame rate.
type Loop struct {
	sched *Scheduler
	fn    func()

	mu      sync.Mutex
	state   State
	pending ID // the single cancellation token; zero when none
	frames  uint64
}

func NewLoop(sched *Scheduler, fn func()) *Loop {
	return &Loop{sched: sched, fn: fn}
}

// Start moves the loop to running and requests the first iteration.
// Starting a running loop is a no-op.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Running {
		return false
	}
	l.state = Running
	l.pending = l.sched.Request(l.tick)
	return true
}

// Stop cancels the pending continuation and returns the loop to idle.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Idle {
		return false
	}
	l.state = Idle
	if l.pending != 0 {
		l.sched.Cancel(l.pending)
		l.pending = 0
	}
	return true
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Running() bool { return l.State() == Running }

// Frames counts completed iterations.
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

func (l *Loop) tick() {
	l.mu.Lock()
	if l.state != Running {
		l.mu.Unlock()
		return
	}
	l.pending = 0
	l.mu.Unlock()

	l.fn()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames++
	// fn may have stopped the loop (end of track).
	if l.state == Running && l.pending == 0 {
		l.pending = l.sched.Request(l.tick)
	}
}
