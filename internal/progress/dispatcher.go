package progress

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Dispatcher fans progress reports out to observers from its own goroutine.
type Dispatcher struct {
	ch        chan Progress
	observers []Observer
	log       logrus.FieldLogger

	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDispatcher starts a dispatcher with a buffer of size events.
func NewDispatcher(size int, log logrus.FieldLogger, observers ...Observer) *Dispatcher {
	if size <= 0 {
		size = 16
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{ch: make(chan Progress, size), observers: observers, log: log}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Publish queues p without blocking. It reports false when the event was
// dropped because the buffer was full.
func (d *Dispatcher) Publish(p Progress) bool {
	select {
	case d.ch <- p:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of events dropped so far.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Close delivers the queued events and stops the dispatcher. Publish must not
// be called after Close.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.ch)
		d.wg.Wait()
	})
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for p := range d.ch {
		for _, o := range d.observers {
			d.deliver(o, p)
		}
	}
}

func (d *Dispatcher) deliver(o Observer, p Progress) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Warn("progress: observer panicked; event skipped")
		}
	}()
	o.Observe(p)
}
