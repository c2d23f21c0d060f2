package reconcile

import (
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/internal/store"
)

type blockingGateway struct {
	calls   int32
	release chan struct{}
}

func (g *blockingGateway) ListByLabel(string) ([]model.ContainerSummary, error) {
	atomic.AddInt32(&g.calls, 1)
	<-g.release
	return nil, nil
}
func (g *blockingGateway) Create(string, string, []uint16, string, string) error { return nil }
func (g *blockingGateway) Stop(string) error                                     { return nil }
func (g *blockingGateway) Remove(string) error                                   { return nil }

func TestCoordinatorCollapsesConcurrentTriggers(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fields, _ := json.Marshal(model.PodFields{Image: "nginx", Replicas: 1, Ports: []uint16{80}})
	desired := model.DesiredMap{"site": model.Program{{Kind: "pod", Name: "web", Fields: fields}}}
	raw, _ := json.Marshal(desired)
	require.NoError(t, s.PutDesired("desired", raw))

	gw := &blockingGateway{release: make(chan struct{})}
	r := New(s, gw, nil, nil)
	c := NewCoordinator(r, time.Hour, nil)

	stop := make(chan struct{})
	go c.Run(stop)
	defer close(stop)

	c.Trigger()
	// Give the first trigger time to enter fire() and block inside ListByLabel.
	time.Sleep(50 * time.Millisecond)

	c.Trigger()
	c.Trigger()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.calls))
	close(gw.release)
}
