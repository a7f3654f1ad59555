package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/Simplifai/internal/core"
)

// artifactKey namespaces every artifact under its owner and job.
func artifactKey(ownerID, jobID, name string) (string, error) {
	for field, v := range map[string]string{"owner_id": ownerID, "job_id": jobID, "name": name} {
		if v == "" {
			return "", core.Invalid(field, "must not be empty")
		}
		if strings.Contains(v, "..") || strings.ContainsAny(v, `/\`) {
			return "", core.Invalid(field, "contains a path separator")
		}
	}
	return fmt.Sprintf("%s/%s/%s", ownerID, jobID, name), nil
}

// BucketStore is an ArtifactStore on top of any ObjectClient bucket.
type BucketStore struct {
	obj    core.ObjectClient
	bucket string
}

func NewBucketStore(obj core.ObjectClient, bucket string) *BucketStore {
	return &BucketStore{obj: obj, bucket: bucket}
}

func (s *BucketStore) Put(ctx context.Context, ownerID, jobID, name string, data []byte, contentType string) (string, error) {
	key, err := artifactKey(ownerID, jobID, name)
	if err != nil {
		return "", err
	}
	if _, err := s.obj.UploadFile(ctx, s.bucket, key, bytes.NewReader(data), contentType); err != nil {
		return "", err
	}
	return key, nil
}

func (s *BucketStore) Get(ctx context.Context, ownerID, jobID, name string) ([]byte, error) {
	key, err := artifactKey(ownerID, jobID, name)
	if err != nil {
		return nil, err
	}
	return s.obj.GetFile(ctx, s.bucket, key)
}

func (s *BucketStore) Delete(ctx context.Context, ownerID, jobID, name string) error {
	key, err := artifactKey(ownerID, jobID, name)
	if err != nil {
		return err
	}
	return s.obj.DeleteFile(ctx, s.bucket, key)
}

// FileStore keeps artifacts on local disk, for development and tests.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Put writes via a temp file and rename so readers never see a partial artifact.
func (s *FileStore) Put(ctx context.Context, ownerID, jobID, name string, data []byte, _ string) (string, error) {
	key, err := artifactKey(ownerID, jobID, name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", core.Transient(fmt.Errorf("create job dir: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".*")
	if err != nil {
		return "", core.Transient(fmt.Errorf("create temp artifact: %w", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", core.Transient(fmt.Errorf("write artifact: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return "", core.Transient(fmt.Errorf("close artifact: %w", err))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", core.Transient(fmt.Errorf("commit artifact: %w", err))
	}
	return key, nil
}

func (s *FileStore) Get(ctx context.Context, ownerID, jobID, name string) ([]byte, error) {
	key, err := artifactKey(ownerID, jobID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("artifact %s: %w", key, core.ErrNotFound)
	}
	return data, err
}

func (s *FileStore) Delete(ctx context.Context, ownerID, jobID, name string) error {
	key, err := artifactKey(ownerID, jobID, name)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var (
	_ core.ArtifactStore = (*BucketStore)(nil)
	_ core.ArtifactStore = (*FileStore)(nil)
)
