package backup

import (
	"context"
	"fmt"

	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/metrics"
	"github.com/wugren/buckyos/pkg/security"
	"github.com/wugren/buckyos/pkg/taskstorage"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

// DefaultChunkSize is used when a remote file service's AddFile response
// doesn't specify one.
const DefaultChunkSize = 4 << 20 // 4 MiB

// Task drives a single backup run to completion, one incomplete file at a
// time. A Task is stateless between calls to RunOnce: all progress lives in
// taskstorage and chunkstore, so a crash mid-run resumes exactly where it
// left off.
type Task struct {
	TaskID string

	storage  *taskstorage.Storage
	chunks   *chunkstore.Store
	reader   ChunkReader
	services Services
}

// NewTask builds a Task bound to a persisted task record and the services
// needed to push its remaining work.
func NewTask(taskID string, storage *taskstorage.Storage, chunks *chunkstore.Store, reader ChunkReader, services Services) *Task {
	return &Task{TaskID: taskID, storage: storage, chunks: chunks, reader: reader, services: services}
}

// RunOnce processes one incomplete file (or, if none remain, checks
// completion) and returns the state the task should transition to.
// Mirrors run_once from the original driver loop: any remote or storage
// error yields ErrorAndWillRetry, returned together with that error, so the
// caller's retry loop can log it, back off and try again without losing
// progress already made.
func (t *Task) RunOnce(ctx context.Context) (zonetypes.TaskState, error) {
	state, err := t.runOnce(ctx)
	metrics.TaskRunsTotal.WithLabelValues(string(state)).Inc()
	return state, err
}

func (t *Task) runOnce(ctx context.Context) (zonetypes.TaskState, error) {
	task, err := t.storage.GetTask(t.TaskID)
	if err != nil {
		return zonetypes.TaskErrorAndWillRetry, fmt.Errorf("backup: load task: %w", err)
	}

	remoteTaskID, err := t.services.Tasks.PushTaskInfo(ctx, task)
	if err != nil {
		return zonetypes.TaskErrorAndWillRetry, fmt.Errorf("backup: push task info: %w", err)
	}

	files, err := t.storage.GetIncompleteFiles(t.TaskID, 0, 1)
	if err != nil {
		return zonetypes.TaskErrorAndWillRetry, fmt.Errorf("backup: get incomplete files: %w", err)
	}
	if len(files) == 0 {
		ready, err := t.storage.IsAllFilesReady(t.TaskID)
		if err != nil {
			return zonetypes.TaskErrorAndWillRetry, fmt.Errorf("backup: check files ready: %w", err)
		}
		if ready {
			return zonetypes.TaskSucceeded, nil
		}
		return zonetypes.TaskIdle, nil
	}

	file := files[0]
	if err := t.runFile(ctx, remoteTaskID, task, file); err != nil {
		return zonetypes.TaskErrorAndWillRetry, err
	}
	return zonetypes.TaskWorking, nil
}

func (t *Task) runFile(ctx context.Context, remoteTaskID string, task *zonetypes.TaskInfo, file *zonetypes.FileInfo) error {
	chunkSize, err := t.ensureFilePushed(ctx, remoteTaskID, file)
	if err != nil {
		return err
	}

	chunkCount := int((file.Size + chunkSize - 1) / chunkSize)
	if file.Size == 0 {
		chunkCount = 0
	}

	for seqNo := 0; seqNo < chunkCount; seqNo++ {
		offset := int64(seqNo) * chunkSize
		length := chunkSize
		if remaining := file.Size - offset; remaining < length {
			length = remaining
		}
		if err := t.runChunk(ctx, file, seqNo, offset, length); err != nil {
			return err
		}
	}

	file.ChunkCount = chunkCount
	file.AllUploaded = true
	if err := t.storage.PutFile(t.TaskID, file); err != nil {
		return fmt.Errorf("backup: mark file uploaded: %w", err)
	}
	return t.storage.IncrementCompletedFiles(t.TaskID)
}

func (t *Task) ensureFilePushed(ctx context.Context, remoteTaskID string, file *zonetypes.FileInfo) (int64, error) {
	if file.PushedInfo {
		// The remote's chunk size is not kept on the file record; the first
		// recorded chunk carries it (or the whole file, if it fits in one).
		// With no chunk recorded yet, the file info is pushed again.
		if first, err := t.storage.GetChunk(t.TaskID, file.FileSeq, 0); err == nil && first.Length > 0 {
			return first.Length, nil
		}
	}
	chunkSize, err := t.services.Files.AddFile(ctx, remoteTaskID, file)
	if err != nil {
		return 0, fmt.Errorf("backup: push file info: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	file.PushedInfo = true
	if err := t.storage.PutFile(t.TaskID, file); err != nil {
		return 0, fmt.Errorf("backup: record file pushed: %w", err)
	}
	return chunkSize, nil
}

func (t *Task) runChunk(ctx context.Context, file *zonetypes.FileInfo, seqNo int, offset, length int64) error {
	chunk, err := t.storage.GetChunk(t.TaskID, file.FileSeq, seqNo)
	if err != nil {
		data, readErr := t.reader.ReadRange(file.RelPath, offset, length)
		if readErr != nil {
			return fmt.Errorf("backup: read chunk %d of %s: %w", seqNo, file.RelPath, readErr)
		}
		chunk = &zonetypes.ChunkInfo{
			TaskID:  t.TaskID,
			FileSeq: file.FileSeq,
			SeqNo:   seqNo,
			Offset:  offset,
			Length:  length,
			Hash:    security.HashContent(data),
		}
		if err := t.storage.AddChunk(t.TaskID, chunk); err != nil {
			return fmt.Errorf("backup: record chunk: %w", err)
		}
	}

	// Services has no call that sends chunk metadata to the remote side, so
	// the info mark below is set locally once the chunk's record exists;
	// only the chunk bytes are sent, by Upload.
	pushed, err := t.chunks.IsInfoPushed(chunk.Hash)
	if err != nil {
		return fmt.Errorf("backup: check chunk info pushed: %w", err)
	}
	if !pushed {
		if err := t.chunks.MarkInfoPushed(chunk.Hash, chunk.Length); err != nil {
			return fmt.Errorf("backup: mark chunk info pushed: %w", err)
		}
	}

	uploaded, err := t.chunks.IsUploaded(chunk.Hash)
	if err != nil {
		return fmt.Errorf("backup: check chunk uploaded: %w", err)
	}
	if uploaded {
		metrics.ChunksDedupedTotal.Inc()
		return nil
	}

	data, err := t.reader.ReadRange(file.RelPath, offset, length)
	if err != nil {
		return fmt.Errorf("backup: read chunk %d of %s: %w", seqNo, file.RelPath, err)
	}
	if err := t.services.Chunks.Upload(ctx, chunk.Hash, data); err != nil {
		return fmt.Errorf("backup: upload chunk: %w", err)
	}
	metrics.BytesUploadedTotal.Add(float64(len(data)))
	return t.chunks.MarkUploaded(chunk.Hash)
}
