// Package backup drives the content-addressed backup engine: it walks a
// task's incomplete files one at a time, splits each into chunks, and
// pushes task/file/chunk metadata plus chunk bytes to remote services,
// retrying on failure without ever re-uploading a chunk that has already
// landed. Grounded on the original backup_service's task.rs run_once loop,
// generalized from its in-process task-manager handles onto pluggable
// interfaces so the remote side can be reached over pkg/rpcenvelope.
package backup

import (
	"context"

	"github.com/wugren/buckyos/pkg/zonetypes"
)

// TaskPusher registers task metadata with a remote task-manager service and
// returns the id that service assigned the task.
type TaskPusher interface {
	PushTaskInfo(ctx context.Context, task *zonetypes.TaskInfo) (remoteTaskID string, err error)
}

// FilePusher registers a file's metadata with a remote file-manager service
// and returns the chunk size that service wants the file split into.
type FilePusher interface {
	AddFile(ctx context.Context, remoteTaskID string, file *zonetypes.FileInfo) (chunkSize int64, err error)
}

// ChunkUploader ships one chunk's bytes to a remote chunk-manager service.
type ChunkUploader interface {
	Upload(ctx context.Context, hash string, data []byte) error
}

// Services bundles the remote endpoints a single task run needs. A Driver
// resolves a fresh Services value per task id via its selector, so retries
// naturally re-route around an endpoint that has gone unready.
type Services struct {
	Tasks  TaskPusher
	Files  FilePusher
	Chunks ChunkUploader
}
