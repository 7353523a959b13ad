package backup

import (
	"context"
	"testing"

	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/taskstorage"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

type memReader struct {
	files map[string][]byte
}

func (r *memReader) ReadRange(relPath string, offset, length int64) ([]byte, error) {
	data := r.files[relPath]
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

type recordingServices struct {
	pushedTasks int
	pushedFiles int
	uploads     map[string][]byte
}

func newRecordingServices() *recordingServices {
	return &recordingServices{uploads: make(map[string][]byte)}
}

func (s *recordingServices) PushTaskInfo(ctx context.Context, task *zonetypes.TaskInfo) (string, error) {
	s.pushedTasks++
	return "remote-" + task.TaskID, nil
}

func (s *recordingServices) AddFile(ctx context.Context, remoteTaskID string, file *zonetypes.FileInfo) (int64, error) {
	s.pushedFiles++
	return 4, nil // tiny chunk size to exercise multi-chunk splitting
}

func (s *recordingServices) Upload(ctx context.Context, hash string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.uploads[hash] = cp
	return nil
}

func setupTask(t *testing.T, content []byte) (*Task, *taskstorage.Storage, *recordingServices) {
	t.Helper()
	store := kv.NewMemStore()
	ts := taskstorage.New(store)
	cs := chunkstore.New(store)

	task := &zonetypes.TaskInfo{TaskID: "t1", TaskKey: "home", DirPath: "/src"}
	files := []*zonetypes.FileInfo{{TaskID: "t1", FileSeq: 0, RelPath: "a.bin", Size: int64(len(content))}}
	if err := ts.CreateTaskWithFiles(task, files); err != nil {
		t.Fatalf("CreateTaskWithFiles: %v", err)
	}

	reader := &memReader{files: map[string][]byte{"a.bin": content}}
	svc := newRecordingServices()
	bt := NewTask("t1", ts, cs, reader, Services{Tasks: svc, Files: svc, Chunks: svc})
	return bt, ts, svc
}

func TestRunOnceDrivesTaskToSucceeded(t *testing.T) {
	bt, ts, svc := setupTask(t, []byte("0123456789")) // 10 bytes / 4-byte chunks = 3 chunks

	state, err := bt.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if state != zonetypes.TaskWorking {
		t.Fatalf("expected Working after processing the only file, got %v", state)
	}

	state, err = bt.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if state != zonetypes.TaskSucceeded {
		t.Fatalf("expected Succeeded once the file is fully uploaded, got %v", state)
	}

	if svc.pushedFiles != 1 {
		t.Fatalf("expected exactly one AddFile call, got %d", svc.pushedFiles)
	}
	if len(svc.uploads) != 3 {
		t.Fatalf("expected 3 distinct chunks uploaded, got %d", len(svc.uploads))
	}

	f, err := ts.GetFile("t1", 0)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !f.AllUploaded || f.ChunkCount != 3 {
		t.Fatalf("expected file marked fully uploaded with 3 chunks, got %+v", f)
	}
}

func TestRunOnceDoesNotReuploadAlreadyUploadedChunk(t *testing.T) {
	bt, _, svc := setupTask(t, []byte("abcd")) // exactly one 4-byte chunk

	if _, err := bt.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(svc.uploads) != 1 {
		t.Fatalf("expected 1 chunk uploaded, got %d", len(svc.uploads))
	}

	// A second, independent task whose only file has identical bytes (and
	// therefore an identical chunk hash) should not re-upload the chunk.
	store2 := bt.storage
	cs := bt.chunks
	reader2 := &memReader{files: map[string][]byte{"b.bin": []byte("abcd")}}
	task2 := &zonetypes.TaskInfo{TaskID: "t2", TaskKey: "home2", DirPath: "/src"}
	files2 := []*zonetypes.FileInfo{{TaskID: "t2", FileSeq: 0, RelPath: "b.bin", Size: 4}}
	if err := store2.CreateTaskWithFiles(task2, files2); err != nil {
		t.Fatalf("CreateTaskWithFiles: %v", err)
	}
	bt2 := NewTask("t2", store2, cs, reader2, Services{Tasks: svc, Files: svc, Chunks: svc})

	if _, err := bt2.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(svc.uploads) != 1 {
		t.Fatalf("expected no new upload for a chunk with an identical hash, got %d uploads", len(svc.uploads))
	}
}
