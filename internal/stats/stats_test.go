package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezn-project/rezn/internal/model"
)

func TestMergeInsertsNewContainer(t *testing.T) {
	in := NewIngester("ws://unused", NewFanOut(nil), nil)
	cpu := 1.0
	in.merge(map[string]model.StatsSample{"c1": {CPUAvg: &cpu}})

	snap := in.Snapshot()
	require.Contains(t, snap, "c1")
	assert.Equal(t, cpu, *snap["c1"].Stats.CPUAvg)
}

func TestMergeRejectsNonIncreasingTimestamp(t *testing.T) {
	in := NewIngester("ws://unused", NewFanOut(nil), nil)

	old := 1.0
	in.stats["c1"] = model.TimestampedStats{
		Stats:     model.StatsSample{CPUAvg: &old},
		Timestamp: ^uint64(0), // max uint64: no future now() can exceed it
	}

	newer := 2.0
	in.merge(map[string]model.StatsSample{"c1": {CPUAvg: &newer}})

	snap := in.Snapshot()
	assert.Equal(t, old, *snap["c1"].Stats.CPUAvg)
}
