package backup

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/wugren/buckyos/pkg/blobstore"
	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/rpcenvelope"
	"github.com/wugren/buckyos/pkg/security"
	"github.com/wugren/buckyos/pkg/taskstorage"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

// TestRemoteServicesRoundTripsThroughRPCEnvelope drives a Task against a
// real rpcenvelope.Server backed by RegisterTargetHandlers, exercising the
// full client/server path RemoteServices and the target handlers are
// grounded on, rather than the in-memory recordingServices test double.
func TestRemoteServicesRoundTripsThroughRPCEnvelope(t *testing.T) {
	targetStore := kv.NewMemStore()
	targetTasks := taskstorage.New(targetStore)
	targetChunks := chunkstore.New(targetStore)
	targetBlobs := blobstore.New(targetStore)

	dispatcher := rpcenvelope.NewDispatcher("backup")
	RegisterTargetHandlers(dispatcher, targetTasks, targetChunks, targetBlobs)
	server := rpcenvelope.NewServer("backup", dispatcher)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	client := rpcenvelope.NewClient(ts.URL, "backup", "")
	services := NewRemoteServices(client)

	sourceStore := kv.NewMemStore()
	sourceTasks := taskstorage.New(sourceStore)
	sourceChunks := chunkstore.New(sourceStore)

	content := []byte("hello from a remote backup target, twelve bytes over")
	task := &zonetypes.TaskInfo{TaskID: "remote-t1", TaskKey: "remote-t1", DirPath: "/data"}
	file := &zonetypes.FileInfo{FileSeq: 0, RelPath: "greeting.txt", Size: int64(len(content))}
	if err := sourceTasks.CreateTaskWithFiles(task, []*zonetypes.FileInfo{file}); err != nil {
		t.Fatalf("CreateTaskWithFiles: %v", err)
	}

	reader := &memReader{files: map[string][]byte{"greeting.txt": content}}
	tsk := NewTask("remote-t1", sourceTasks, sourceChunks, reader, services)

	ctx := context.Background()
	var state zonetypes.TaskState
	var err error
	for i := 0; i < 10 && state != zonetypes.TaskSucceeded; i++ {
		state, err = tsk.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	if state != zonetypes.TaskSucceeded {
		t.Fatalf("expected task to succeed, got state %s", state)
	}

	gotFile, err := targetTasks.GetFile("remote-t1", 0)
	if err != nil {
		t.Fatalf("target GetFile: %v", err)
	}
	if gotFile.RelPath != "greeting.txt" {
		t.Fatalf("unexpected target file record: %+v", gotFile)
	}

	wantHash := security.HashContent(content)
	uploaded, err := targetBlobs.Get(wantHash)
	if err != nil {
		t.Fatalf("target blob for %s not found: %v", wantHash, err)
	}
	if string(uploaded) != string(content) {
		t.Fatalf("uploaded blob mismatch: got %q want %q", uploaded, content)
	}
}
