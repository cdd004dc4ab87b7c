// Package storage keeps copies of registered crates and database snapshots on
// an S3 compatible object store.
package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	"lifemonitor/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const (
	cratesPrefix = "crates"
	dbPrefix     = "db"
	crateFile    = "rocrate.zip"

	uploadLockHold = 2 * time.Minute
)

// CrateKey is the object key of the zipped crate of a workflow version.
func CrateKey(workflowUUID, version string) string {
	return path.Join(cratesPrefix, workflowUUID, version, crateFile)
}

// SnapshotKey is the object key of a database snapshot.
func SnapshotKey(name string) string {
	return path.Join(dbPrefix, path.Base(name))
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// RemovePrefix deletes every object whose key starts with prefix.
	RemovePrefix(ctx context.Context, prefix string) error
	URI(key string) string
}

// ObjectStore is a Store on a bucket of an S3 compatible service.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create object store client")
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %q", cfg.Bucket)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, errors.Wrapf(err, "create bucket %q", cfg.Bucket)
		}
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func newObjectStore(client *minio.Client, bucket string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket}
}

func (s *ObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return errors.Wrapf(err, "upload %s", key)
}

func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (s *ObjectStore) RemovePrefix(ctx context.Context, prefix string) error {
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				log.Warnf(nil, "list %s failed: %v", prefix, obj.Err)
				return
			}
			objectsCh <- obj
		}
	}()
	for e := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if e.Err != nil {
			return errors.Wrapf(e.Err, "delete %s", e.ObjectName)
		}
	}
	return nil
}

func (s *ObjectStore) URI(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// LocalStore keeps objects below a directory. It serves deployments without
// an object store.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(s.path(key))
}

func (s *LocalStore) RemovePrefix(_ context.Context, prefix string) error {
	return os.RemoveAll(s.path(strings.TrimSuffix(prefix, "/")))
}

func (s *LocalStore) URI(key string) string {
	return "file://" + filepath.ToSlash(s.path(key))
}

// Archive stores crates and snapshots. Uploads to the same key are serialized
// through a cache lock.
type Archive struct {
	store Store
	cache *cache.Cache
}

func NewArchive(store Store, c *cache.Cache) *Archive {
	return &Archive{store: store, cache: c}
}

// NewArchiveFromConfig uses the object store when one is configured, the
// spool directory otherwise.
func NewArchiveFromConfig(ctx context.Context, cfg config.StorageConfig, c *cache.Cache) (*Archive, error) {
	if cfg.Enabled() {
		store, err := NewObjectStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewArchive(store, c), nil
	}
	store, err := NewLocalStore(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}
	log.Infof(nil, "No object store configured, archiving to %s", cfg.SpoolDir)
	return NewArchive(store, c), nil
}

func (a *Archive) put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	lock, err := a.cache.LockFor(ctx, "storage:"+key, uploadLockHold)
	if err != nil {
		return err
	}
	defer lock.Release()
	return a.store.Put(ctx, key, r, size, contentType)
}

// StoreCrate uploads the zipped crate of a workflow version and returns its location.
func (a *Archive) StoreCrate(ctx context.Context, workflowUUID, version string, data []byte) (string, error) {
	key := CrateKey(workflowUUID, version)
	if err := a.put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/zip"); err != nil {
		return "", err
	}
	log.Debugf(ctx, "Stored crate of workflow %s version %s at %s", workflowUUID, version, key)
	return a.store.URI(key), nil
}

func (a *Archive) LoadCrate(ctx context.Context, workflowUUID, version string) ([]byte, error) {
	return a.store.Get(ctx, CrateKey(workflowUUID, version))
}

// DeleteCrates removes the stored crates of a workflow version, or of every
// version when version is empty.
func (a *Archive) DeleteCrates(ctx context.Context, workflowUUID, version string) error {
	prefix := path.Join(cratesPrefix, workflowUUID) + "/"
	if version != "" {
		prefix = path.Join(cratesPrefix, workflowUUID, version) + "/"
	}
	return a.store.RemovePrefix(ctx, prefix)
}

// StoreSnapshot uploads the database snapshot file at localPath below db/.
func (a *Archive) StoreSnapshot(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	key := SnapshotKey(localPath)
	if err = a.put(ctx, key, f, info.Size(), "application/octet-stream"); err != nil {
		return "", err
	}
	log.Infof(ctx, "Stored database snapshot %s", key)
	return a.store.URI(key), nil
}
