// Package stats ingests container resource samples from the upstream
// gateway's WebSocket feed and fans them out to local subscribers.
package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rezn-project/rezn/internal/model"
)

const (
	dialRetryDelay  = 5 * time.Second
	reconnectDelay  = 2 * time.Second
)

// Ingester maintains the merged StatsMap by consuming the upstream stats
// WebSocket, applying monotonic-freshness merge per container id.
type Ingester struct {
	url    string
	log    *logrus.Entry
	fanout *FanOut

	mu    sync.RWMutex
	stats model.StatsMap
}

// NewIngester builds an Ingester that will publish merged snapshots to fanout.
func NewIngester(url string, fanout *FanOut, log *logrus.Entry) *Ingester {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ingester{url: url, fanout: fanout, log: log, stats: model.StatsMap{}}
}

// Snapshot returns a copy of the current merged StatsMap.
func (in *Ingester) Snapshot() model.StatsMap {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make(model.StatsMap, len(in.stats))
	for k, v := range in.stats {
		out[k] = v
	}
	return out
}

// Run dials the upstream feed and processes frames until stop is closed,
// reconnecting after any dial failure or transport error.
func (in *Ingester) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(in.url, nil)
		if err != nil {
			in.log.WithError(err).Warn("failed to dial stats upstream")
			if sleepOrStop(dialRetryDelay, stop) {
				return
			}
			continue
		}

		in.consume(conn, stop)
		_ = conn.Close()

		if sleepOrStop(reconnectDelay, stop) {
			return
		}
	}
}

func (in *Ingester) consume(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			in.log.WithError(err).Debug("stats upstream transport error")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var batch map[string]model.StatsSample
		if err := json.Unmarshal(payload, &batch); err != nil {
			in.log.WithError(err).Warn("failed to parse stats frame")
			continue
		}

		in.merge(batch)
		in.fanout.Publish(in.Snapshot())
	}
}

func (in *Ingester) merge(batch map[string]model.StatsSample) {
	now := uint64(time.Now().Unix())

	in.mu.Lock()
	defer in.mu.Unlock()
	for id, sample := range batch {
		existing, ok := in.stats[id]
		if !ok || now > existing.Timestamp {
			in.stats[id] = model.TimestampedStats{Stats: sample, Timestamp: now}
		}
	}
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return true
	case <-t.C:
		return false
	}
}
