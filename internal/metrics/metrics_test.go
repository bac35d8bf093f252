package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	require.NotNil(t, c)

	// A second collector on the same registry must collide.
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestSpinLifecycle(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordSpinStarted()
	c.RecordSpinStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.spinsActive))

	c.RecordSpinCompleted(1.5)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.spinsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.spinsCompleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.spinsStarted))

	c.RecordSpinRejected()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.spinsRejected))
}

func TestRecordPublish(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordPublish("spin_tick", 0)
	c.RecordPublish("spin_tick", 2)
	c.RecordPublish("spin_start", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsPublished.WithLabelValues("spin_tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsPublished.WithLabelValues("spin_start")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.observersPruned))
}

func TestGauges(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SetObservers(4)
	c.SetHistorySize(17)
	c.RecordSweep(3)
	c.RecordTick()
	c.RecordArchiveError()

	assert.Equal(t, 4.0, testutil.ToFloat64(c.observers))
	assert.Equal(t, 17.0, testutil.ToFloat64(c.historySize))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.sweptEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.spinTicks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.archiveErrors))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordSpinStarted()
		c.RecordSpinCompleted(1)
		c.RecordSpinRejected()
		c.RecordTick()
		c.RecordPublish("x", 1)
		c.SetObservers(1)
		c.SetHistorySize(1)
		c.RecordSweep(1)
		c.RecordArchiveError()
	})
}
