package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Tickers created from it fire
// once per elapsed period when Advance is called.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		parent: f,
		ch:     make(chan time.Time, 64),
		period: d,
		next:   f.now.Add(d),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward and delivers any due ticks. Delivery is
// non-blocking: a ticker whose channel is full drops the tick, like the
// runtime ticker does.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.now.Add(d)
	for {
		var earliest *fakeTicker
		for _, t := range f.tickers {
			if t.stopped {
				continue
			}
			if !t.next.After(target) && (earliest == nil || t.next.Before(earliest.next)) {
				earliest = t
			}
		}
		if earliest == nil {
			break
		}
		f.now = earliest.next
		select {
		case earliest.ch <- earliest.next:
		default:
		}
		earliest.next = earliest.next.Add(earliest.period)
	}
	f.now = target
}

type fakeTicker struct {
	parent  *Fake
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.parent.mu.Lock()
	t.stopped = true
	t.parent.mu.Unlock()
}
