package backup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/wugren/buckyos/pkg/blobstore"
	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/rpcenvelope"
	"github.com/wugren/buckyos/pkg/taskstorage"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

// RegisterTargetHandlers registers the "push_task_info"/"add_file"/
// "upload_chunk" methods a backup target (the receiving end of a
// RemoteServices client) exposes over a "backup" rpcenvelope.Dispatcher.
// The task's own TaskID is accepted as the remote id: a target has no
// need to mint a distinct one, since task ids are already globally
// unique content-free identifiers minted by the source.
func RegisterTargetHandlers(d *rpcenvelope.Dispatcher, storage *taskstorage.Storage, chunks *chunkstore.Store, blobs *blobstore.Store) {
	d.Register("push_task_info", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var task zonetypes.TaskInfo
		if err := json.Unmarshal(params, &task); err != nil {
			return nil, fmt.Errorf("backup: decode task info: %w", err)
		}
		if _, err := storage.GetTask(task.TaskID); err != nil {
			if err := storage.CreateTaskWithFiles(&task, nil); err != nil {
				return nil, fmt.Errorf("backup: record task: %w", err)
			}
		}
		return pushTaskInfoResult{RemoteTaskID: task.TaskID}, nil
	})

	d.Register("add_file", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p addFileParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("backup: decode add_file params: %w", err)
		}
		if p.File == nil {
			return nil, fmt.Errorf("backup: add_file: missing file")
		}
		if err := storage.PutFile(p.RemoteTaskID, p.File); err != nil {
			return nil, fmt.Errorf("backup: record file: %w", err)
		}
		return addFileResult{ChunkSize: DefaultChunkSize}, nil
	})

	d.Register("upload_chunk", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p uploadChunkParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("backup: decode upload_chunk params: %w", err)
		}
		data, err := base64.StdEncoding.DecodeString(p.DataB64)
		if err != nil {
			return nil, fmt.Errorf("backup: decode chunk data: %w", err)
		}
		if err := blobs.Put(p.Hash, data); err != nil {
			return nil, fmt.Errorf("backup: store chunk: %w", err)
		}
		if err := chunks.MarkUploaded(p.Hash); err != nil {
			return nil, fmt.Errorf("backup: mark uploaded: %w", err)
		}
		return struct{}{}, nil
	})
}
