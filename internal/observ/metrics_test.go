package observ

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestStarted()
		m.RequestFinished("GET", "/up", "200", time.Millisecond)
		m.NumberAllocated("chat")
		m.TaskProcessed("persist_chat", "ok")
		m.TaskAbandoned("persist_chat")
		m.IndexFailed()
		m.SweepFinished("chats_count", 3, time.Second)
		m.SweepSkipped("chats_count")
	})
}

func TestMetrics_Records(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.NumberAllocated("message")
	m.NumberAllocated("message")
	m.TaskAbandoned("persist_message")
	m.SweepFinished("messages_count", 4, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.allocations.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.abandoned.WithLabelValues("persist_message")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.sweepUpdated.WithLabelValues("messages_count")))
}
