package reconcile

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Coordinator collapses concurrent reconcile triggers into at most one
// in-flight reconcile pass, using an atomic flag and a capacity-1 trigger
// channel so neither a ticker nor a post-apply trigger ever blocks.
type Coordinator struct {
	reconciler *Reconciler
	interval   time.Duration
	log        *logrus.Entry

	trigger chan struct{}
	running int32
	done    chan struct{}
}

// NewCoordinator builds a Coordinator that runs r.Reconcile on the given
// interval and on-demand via Trigger.
func NewCoordinator(r *Reconciler, interval time.Duration, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		reconciler: r,
		interval:   interval,
		log:        log,
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Trigger requests a reconcile pass without blocking. If one is already
// queued, the request is dropped; the queued trigger will still observe
// the latest desired state when it runs.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run drives the ticker and trigger channel until stop is closed.
func (c *Coordinator) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.fire()
		case <-c.trigger:
			c.fire()
		}
	}
}

func (c *Coordinator) fire() {
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		c.log.Debug("reconcile already running, dropping trigger")
		return
	}
	defer atomic.StoreInt32(&c.running, 0)

	if err := c.reconciler.Reconcile(); err != nil {
		c.log.WithError(err).Warn("reconcile pass failed")
	}
}
