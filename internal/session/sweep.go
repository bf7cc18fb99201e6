package session

import (
	"sync"
	"time"
)

// Sweeper periodically runs an eviction pass. Each variant manager owns one
// sweeper so abandoned sessions (a browser tab closed mid-edit, a staged
// upload never claimed) do not accumulate. It is explicitly stoppable so
// tests and shutdown never leak timers.
type Sweeper struct {
	interval time.Duration
	sweep    func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper starts a sweeper invoking sweep every interval. The interval
// should be shorter than the shortest idle timeout it enforces.
func NewSweeper(interval time.Duration, sweep func()) *Sweeper {
	s := &Sweeper{
		interval: interval,
		sweep:    sweep,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// Stop halts the sweeper and waits for any in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}
