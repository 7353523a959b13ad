package taskstorage

import (
	"testing"

	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

func seedTask(t *testing.T, s *Storage) *zonetypes.TaskInfo {
	t.Helper()
	task := &zonetypes.TaskInfo{TaskID: "t1", TaskKey: "home", DirPath: "/home/alice"}
	files := []*zonetypes.FileInfo{
		{TaskID: "t1", FileSeq: 0, RelPath: "a.txt", Size: 10},
		{TaskID: "t1", FileSeq: 1, RelPath: "b.txt", Size: 20},
	}
	if err := s.CreateTaskWithFiles(task, files); err != nil {
		t.Fatalf("CreateTaskWithFiles: %v", err)
	}
	return task
}

func TestGetIncompleteFilesPaginatesOneAtATime(t *testing.T) {
	s := New(kv.NewMemStore())
	seedTask(t, s)

	first, err := s.GetIncompleteFiles("t1", 0, 1)
	if err != nil {
		t.Fatalf("GetIncompleteFiles: %v", err)
	}
	if len(first) != 1 || first[0].FileSeq != 0 {
		t.Fatalf("expected file 0 first, got %+v", first)
	}

	f := first[0]
	f.AllUploaded = true
	if err := s.PutFile("t1", f); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	second, err := s.GetIncompleteFiles("t1", 0, 1)
	if err != nil {
		t.Fatalf("GetIncompleteFiles: %v", err)
	}
	if len(second) != 1 || second[0].FileSeq != 1 {
		t.Fatalf("expected file 1 next, got %+v", second)
	}

	f2 := second[0]
	f2.AllUploaded = true
	if err := s.PutFile("t1", f2); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	none, err := s.GetIncompleteFiles("t1", 0, 1)
	if err != nil {
		t.Fatalf("GetIncompleteFiles: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no incomplete files left, got %+v", none)
	}
}

func TestIsAllFilesReadyAndDone(t *testing.T) {
	s := New(kv.NewMemStore())
	seedTask(t, s)

	ready, err := s.IsAllFilesReady("t1")
	if err != nil {
		t.Fatalf("IsAllFilesReady: %v", err)
	}
	if ready {
		t.Fatalf("expected not ready before any file info is pushed")
	}

	for _, seq := range []int{0, 1} {
		f, err := s.GetFile("t1", seq)
		if err != nil {
			t.Fatalf("GetFile: %v", err)
		}
		f.PushedInfo = true
		if err := s.PutFile("t1", f); err != nil {
			t.Fatalf("PutFile: %v", err)
		}
	}

	ready, err = s.IsAllFilesReady("t1")
	if err != nil || !ready {
		t.Fatalf("expected ready=true err=nil, got ready=%v err=%v", ready, err)
	}

	done, err := s.IsAllFilesDone("t1")
	if err != nil {
		t.Fatalf("IsAllFilesDone: %v", err)
	}
	if done {
		t.Fatalf("expected not done before uploads complete")
	}
}

func TestAddAndListChunks(t *testing.T) {
	s := New(kv.NewMemStore())
	seedTask(t, s)

	chunks := []*zonetypes.ChunkInfo{
		{TaskID: "t1", FileSeq: 0, SeqNo: 1, Hash: "h1"},
		{TaskID: "t1", FileSeq: 0, SeqNo: 0, Hash: "h0"},
	}
	for _, c := range chunks {
		if err := s.AddChunk("t1", c); err != nil {
			t.Fatalf("AddChunk: %v", err)
		}
	}

	listed, err := s.ListChunks("t1", 0)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(listed) != 2 || listed[0].SeqNo != 0 || listed[1].SeqNo != 1 {
		t.Fatalf("expected chunks sorted by seq no, got %+v", listed)
	}
}
