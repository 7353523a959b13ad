package metrics

import (
	"time"

	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/session"
	"github.com/wugren/buckyos/pkg/taskstorage"
)

// Collector periodically samples the verify hub, the task store and the
// chunk store and publishes the results as gauges, mirroring the
// manager-polling Collector this package started from.
type Collector struct {
	hub    *session.Hub
	tasks  *taskstorage.Storage
	chunks *chunkstore.Store
	stopCh chan struct{}
}

// NewCollector creates a Collector over the given components. Any of
// them may be nil, in which case that component's metrics are skipped.
func NewCollector(hub *session.Hub, tasks *taskstorage.Storage, chunks *chunkstore.Store) *Collector {
	return &Collector{
		hub:    hub,
		tasks:  tasks,
		chunks: chunks,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectSessionMetrics()
	c.collectTaskMetrics()
	c.collectChunkMetrics()
}

func (c *Collector) collectSessionMetrics() {
	if c.hub == nil {
		return
	}
	c.hub.CleanupExpiredSessions()
	SessionsActive.Set(float64(c.hub.ActiveSessionCount()))
}

func (c *Collector) collectTaskMetrics() {
	if c.tasks == nil {
		return
	}
	tasks, err := c.tasks.ListTasks()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, task := range tasks {
		counts[string(task.State)]++
	}
	for state, count := range counts {
		TasksActive.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectChunkMetrics() {
	if c.chunks == nil {
		return
	}
	_, uploaded, err := c.chunks.Counts()
	if err != nil {
		return
	}
	ChunksUploadedTotal.Set(float64(uploaded))
}
