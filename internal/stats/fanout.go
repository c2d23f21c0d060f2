package stats

import (
	"encoding/json"
	"sync"

	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/model"
)

const subscriberBufferSize = 100

// FanOut broadcasts stats snapshots to any number of subscribers. Each
// subscriber has its own capacity-100 channel; a subscriber that falls
// behind has its oldest buffered message dropped rather than blocking
// the publisher.
type FanOut struct {
	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
	metrics     *metrics.Metrics
}

// NewFanOut builds an empty FanOut reporting subscriber counts to m. m may
// be nil, in which case no metrics are recorded.
func NewFanOut(m *metrics.Metrics) *FanOut {
	return &FanOut{subscribers: make(map[chan []byte]struct{}), metrics: m}
}

// Subscribe registers a new receiver. Callers must call Unsubscribe when
// done to release it.
func (f *FanOut) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBufferSize)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	if f.metrics != nil {
		f.metrics.StatsSubscribers.Inc()
	}
	return ch
}

// Unsubscribe removes and closes a receiver previously returned by Subscribe.
func (f *FanOut) Unsubscribe(ch chan []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[ch]; ok {
		delete(f.subscribers, ch)
		close(ch)
		if f.metrics != nil {
			f.metrics.StatsSubscribers.Dec()
		}
	}
}

// Publish serializes snapshot and sends it to every current subscriber,
// dropping the oldest buffered message for any subscriber whose channel
// is full.
func (f *FanOut) Publish(snapshot model.StatsMap) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- payload:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- payload:
			default:
			}
		}
	}
}
