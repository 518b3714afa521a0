package worker

import (
	"sync"
)

// Work is a coalescing deferred task. Scheduling never blocks; schedules that
// arrive while the task is already pending collapse into one run. The task
// always runs on the Work's own goroutine, never on the caller's stack.
type Work struct {
	fn func()

	kick  chan struct{}
	flush chan chan struct{}
	quit  chan struct{}
	done  chan struct{}

	stopOnce sync.Once
}

// NewWork starts the goroutine that runs fn.
func NewWork(fn func()) *Work {
	w := &Work{
		fn:    fn,
		kick:  make(chan struct{}, 1),
		flush: make(chan chan struct{}),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Schedule marks the work pending. It returns immediately.
func (w *Work) Schedule() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Flush waits until any pending or running execution has finished.
// It returns immediately once the work has been stopped.
func (w *Work) Flush() {
	ack := make(chan struct{})
	select {
	case w.flush <- ack:
		<-ack
	case <-w.done:
	}
}

// Stop runs a final pending execution, if any, and ends the goroutine.
func (w *Work) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
}

func (w *Work) loop() {
	defer close(w.done)

	for {
		select {
		case <-w.kick:
			w.fn()
		case ack := <-w.flush:
			w.runPending()
			close(ack)
		case <-w.quit:
			w.runPending()
			return
		}
	}
}

func (w *Work) runPending() {
	select {
	case <-w.kick:
		w.fn()
	default:
	}
}
