// Package blobstore hides the durable object store behind a small interface.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"recording-pipeline/constant"
)

var ErrNotFound = errors.New("object not found")

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

type Options struct {
	Driver    constant.StorageDriver
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
	// Root is the directory used by the local driver.
	Root string
}

func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case constant.StorageDriverMinIO, "":
		return NewMinIO(opts)
	case constant.StorageDriverS3:
		return NewS3(ctx, opts)
	case constant.StorageDriverLocal:
		return NewLocal(opts.Root)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

// PutFile streams a local file to key.
func PutFile(ctx context.Context, store Store, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return store.Put(ctx, key, f, info.Size(), contentType)
}

// GetFile streams key into a local file, creating parent directories.
func GetFile(ctx context.Context, store Store, key, path string) (int64, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return 0, err
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return 0, err
	}
	return n, out.Close()
}
