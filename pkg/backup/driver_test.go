package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/events"
	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/selector"
	"github.com/wugren/buckyos/pkg/taskstorage"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

type flakyTaskPusher struct {
	failTimes int
	calls     int
}

func (f *flakyTaskPusher) PushTaskInfo(ctx context.Context, task *zonetypes.TaskInfo) (string, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return "", errors.New("remote task manager unreachable")
	}
	return "remote-" + task.TaskID, nil
}

type noopFilePusher struct{}

func (noopFilePusher) AddFile(ctx context.Context, remoteTaskID string, file *zonetypes.FileInfo) (int64, error) {
	return 4, nil
}

type noopChunkUploader struct{}

func (noopChunkUploader) Upload(ctx context.Context, hash string, data []byte) error { return nil }

func TestDriverRetriesThenSucceeds(t *testing.T) {
	store := kv.NewMemStore()
	ts := taskstorage.New(store)
	cs := chunkstore.New(store)

	task := &zonetypes.TaskInfo{TaskID: "t1", TaskKey: "home", DirPath: "/src"}
	files := []*zonetypes.FileInfo{{TaskID: "t1", FileSeq: 0, RelPath: "a.bin", Size: 4}}
	if err := ts.CreateTaskWithFiles(task, files); err != nil {
		t.Fatalf("CreateTaskWithFiles: %v", err)
	}

	sel := selector.New([]selector.Endpoint{{ID: "ep1", Ready: true}})
	flaky := &flakyTaskPusher{failTimes: 2}
	resolve := func(selector.Endpoint) Services {
		return Services{Tasks: flaky, Files: noopFilePusher{}, Chunks: noopChunkUploader{}}
	}
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	d := NewDriver(ts, cs, sel, resolve, broker, 5*time.Millisecond, 20*time.Millisecond)
	reader := &memReader{files: map[string][]byte{"a.bin": []byte("abcd")}}
	d.Start("t1", reader)
	defer d.StopAll()

	deadline := time.After(2 * time.Second)
	succeeded := false
	for !succeeded {
		select {
		case ev := <-sub:
			if ev.Type == events.EventTaskSucceeded {
				succeeded = true
			}
		case <-deadline:
			t.Fatalf("task did not reach Succeeded before deadline")
		}
	}

	final, err := ts.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if final.State != zonetypes.TaskSucceeded {
		t.Fatalf("expected persisted state Succeeded, got %v", final.State)
	}
	if flaky.calls < 3 {
		t.Fatalf("expected at least 3 PushTaskInfo attempts (2 failures + 1 success), got %d", flaky.calls)
	}
}
