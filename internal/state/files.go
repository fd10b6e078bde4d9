// internal/state/files.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/ledgerclaw/internal/types"
)

// FileStore keeps uploaded blobs under files/<fileID>/ with a meta.json beside
// the content.
type FileStore struct {
	root string
}

// NewFileStore creates a new FileStore rooted at the given directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (f *FileStore) dir(id types.FileID) string {
	return filepath.Join(f.root, "files", string(id))
}

// Save writes content and metadata. StoredPath, Size and BlobReference are filled in.
func (f *FileStore) Save(_ context.Context, file *types.UploadedFile, content []byte) error {
	if file.ID == "" {
		file.ID = types.NewFileID()
	}
	name := filepath.Base(file.FileName)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload.bin"
	}
	dir := f.dir(file.ID)
	file.StoredPath = filepath.Join(dir, name)
	file.Size = int64(len(content))
	file.BlobReference = "file://" + file.StoredPath
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}

	if err := writeAtomic(file.StoredPath, content); err != nil {
		return fmt.Errorf("save file content: %w", err)
	}
	meta, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal file meta: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, "meta.json"), meta); err != nil {
		return fmt.Errorf("save file meta: %w", err)
	}
	return nil
}

// ResolveFile returns nil, nil when the file is unknown.
func (f *FileStore) ResolveFile(_ context.Context, id types.FileID) (*types.UploadedFile, error) {
	if id == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(f.dir(id), "meta.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file meta: %w", err)
	}
	var file types.UploadedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal file meta: %w", err)
	}
	return &file, nil
}

// Read returns the stored bytes for id.
func (f *FileStore) Read(ctx context.Context, id types.FileID) ([]byte, error) {
	file, err := f.ResolveFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("file %s: %w", id, types.ErrNotFound)
	}
	data, err := os.ReadFile(file.StoredPath)
	if err != nil {
		return nil, fmt.Errorf("read file content: %w", err)
	}
	return data, nil
}
