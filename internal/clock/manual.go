package clock

import (
	"sync"
	"time"
)

// Manual is a virtual clock that only moves when Advance is called.
//
// It is a Source: every Open returns a fresh handle sharing the same time base,
// and closing a handle cancels only the pollers registered through it. Pollers
// fire inside Advance, in time order, with Now() reporting the poll instant.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pollers []*manualPoller
	opens   int
	openErr error
}

type manualPoller struct {
	seq     uint64
	owner   *manualClock
	every   time.Duration
	next    time.Duration
	fn      func()
	stopped bool
}

func NewManual() *Manual { return &Manual{} }

// FailOpen makes subsequent Open calls return err. Pass nil to clear.
func (m *Manual) FailOpen(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

// Opens reports how many handles have been opened.
func (m *Manual) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Pollers reports the number of active pollers across all handles.
func (m *Manual) Pollers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pollers {
		if !p.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) Open() (Clock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opens++
	return &manualClock{m: m}, nil
}

func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now.Seconds()
}

// Elapsed returns the virtual time as a Duration.
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves time forward by d, firing every poller that comes due on the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		p := m.dueLocked(target)
		if p == nil {
			break
		}
		m.now = p.next
		p.next += p.every
		fn := p.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	if target > m.now {
		m.now = target
	}
	m.compactLocked()
	m.mu.Unlock()
}

func (m *Manual) dueLocked(target time.Duration) *manualPoller {
	var best *manualPoller
	for _, p := range m.pollers {
		if p.stopped || p.next > target {
			continue
		}
		if best == nil || p.next < best.next || (p.next == best.next && p.seq < best.seq) {
			best = p
		}
	}
	return best
}

func (m *Manual) compactLocked() {
	live := m.pollers[:0]
	for _, p := range m.pollers {
		if !p.stopped {
			live = append(live, p)
		}
	}
	for i := len(live); i < len(m.pollers); i++ {
		m.pollers[i] = nil
	}
	m.pollers = live
}

type manualClock struct {
	m      *Manual
	closed bool // guarded by m.mu
}

func (c *manualClock) Now() float64 { return c.m.Now() }

func (c *manualClock) Every(d time.Duration, fn func()) func() {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.closed || d <= 0 || fn == nil {
		return func() {}
	}
	m.seq++
	p := &manualPoller{seq: m.seq, owner: c, every: d, next: m.now + d, fn: fn}
	m.pollers = append(m.pollers, p)
	return func() {
		m.mu.Lock()
		p.stopped = true
		m.mu.Unlock()
	}
}

func (c *manualClock) Close() error {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	c.closed = true
	for _, p := range m.pollers {
		if p.owner == c {
			p.stopped = true
		}
	}
	return nil
}
