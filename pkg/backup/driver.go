package backup

import (
	"context"
	"time"

	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/events"
	"github.com/wugren/buckyos/pkg/selector"
	"github.com/wugren/buckyos/pkg/taskstorage"
	"github.com/wugren/buckyos/pkg/zlog"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

// ServiceResolver builds the Services a task should use for its next run
// from the endpoint the Driver's selector picked by task id, so retries of
// the same task keep hitting the same remote endpoint as long as it stays
// ready.
type ServiceResolver func(endpoint selector.Endpoint) Services

// Driver runs every registered task to completion, one RunOnce tick at a
// time, retrying tasks that report ErrorAndWillRetry with backoff. Grounded
// on the reconciler's ticker loop and the worker health monitor's
// per-item goroutine + cancel-func bookkeeping, adapted from "reconcile
// cluster state" to "drive each backup task's state machine forward".
type Driver struct {
	storage  *taskstorage.Storage
	chunks   *chunkstore.Store
	selector *selector.Selector
	resolve  ServiceResolver
	broker   *events.Broker

	tickInterval time.Duration
	maxBackoff   time.Duration

	cancelFns map[string]context.CancelFunc
	stopCh    chan struct{}
}

// NewDriver creates a Driver. tickInterval governs how often an idle task
// is re-checked for new work; maxBackoff caps the retry delay after
// repeated ErrorAndWillRetry results.
func NewDriver(storage *taskstorage.Storage, chunks *chunkstore.Store, sel *selector.Selector, resolve ServiceResolver, broker *events.Broker, tickInterval, maxBackoff time.Duration) *Driver {
	return &Driver{
		storage:      storage,
		chunks:       chunks,
		selector:     sel,
		resolve:      resolve,
		broker:       broker,
		tickInterval: tickInterval,
		maxBackoff:   maxBackoff,
		cancelFns:    make(map[string]context.CancelFunc),
		stopCh:       make(chan struct{}),
	}
}

// Start begins driving taskID forward in its own goroutine, building chunk
// reads from reader. Calling Start twice for the same taskID is a no-op.
func (d *Driver) Start(taskID string, reader ChunkReader) {
	if _, running := d.cancelFns[taskID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancelFns[taskID] = cancel
	go d.driveLoop(ctx, taskID, reader)
}

// Stop cancels a single task's driver loop (e.g. the user paused a backup).
func (d *Driver) Stop(taskID string) {
	if cancel, ok := d.cancelFns[taskID]; ok {
		cancel()
		delete(d.cancelFns, taskID)
	}
}

// StopAll cancels every running task loop, for process shutdown.
func (d *Driver) StopAll() {
	close(d.stopCh)
	for _, cancel := range d.cancelFns {
		cancel()
	}
}

func (d *Driver) driveLoop(ctx context.Context, taskID string, reader ChunkReader) {
	logger := zlog.WithTaskID(taskID)
	backoff := d.tickInterval

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		task := NewTask(taskID, d.storage, d.chunks, reader, d.servicesFor(taskID))
		state, err := task.RunOnce(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("task run failed, will retry")
		}
		if setErr := d.storage.UpdateTaskState(taskID, state, errString(err)); setErr != nil {
			logger.Error().Err(setErr).Msg("failed to persist task state")
		}
		d.broker.Publish(&events.Event{Type: events.TaskEventType(state), TaskID: taskID})

		switch state {
		case zonetypes.TaskSucceeded, zonetypes.TaskFail:
			delete(d.cancelFns, taskID)
			return
		case zonetypes.TaskErrorAndWillRetry:
			if backoff < d.maxBackoff {
				backoff *= 2
				if backoff > d.maxBackoff {
					backoff = d.maxBackoff
				}
			}
			wait(ctx, backoff)
		default:
			backoff = d.tickInterval
			wait(ctx, d.tickInterval)
		}
	}
}

func (d *Driver) servicesFor(taskKey string) Services {
	endpoint, err := d.selector.Select(taskKey)
	if err != nil {
		return Services{}
	}
	return d.resolve(endpoint)
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
