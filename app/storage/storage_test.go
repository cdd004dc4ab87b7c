package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"lifemonitor/app/cache"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	asserter := assert.New(t)
	asserter.Equal("crates/0b2c/1.0/rocrate.zip", CrateKey("0b2c", "1.0"))
	asserter.Equal("db/lifemonitor.sql.gz", SnapshotKey("/var/backups/lifemonitor.sql.gz"))
}

func TestArchive_Local(t *testing.T) {
	asserter := assert.New(t)
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	archive := NewArchive(store, cache.New(cache.NewMemoryBackend()))
	ctx := context.Background()

	uri, err := archive.StoreCrate(ctx, "wf-uuid", "1.0", []byte("zip-1.0"))
	if asserter.NoError(err) {
		asserter.Equal("file://"+filepath.ToSlash(filepath.Join(root, "crates", "wf-uuid", "1.0", "rocrate.zip")), uri)
	}
	_, err = archive.StoreCrate(ctx, "wf-uuid", "2.0", []byte("zip-2.0"))
	require.NoError(t, err)

	data, err := archive.LoadCrate(ctx, "wf-uuid", "1.0")
	if asserter.NoError(err) {
		asserter.Equal("zip-1.0", string(data))
	}

	require.NoError(t, archive.DeleteCrates(ctx, "wf-uuid", "1.0"))
	_, err = archive.LoadCrate(ctx, "wf-uuid", "1.0")
	asserter.Error(err)
	_, err = archive.LoadCrate(ctx, "wf-uuid", "2.0")
	asserter.NoError(err)

	require.NoError(t, archive.DeleteCrates(ctx, "wf-uuid", ""))
	_, err = os.Stat(filepath.Join(root, "crates", "wf-uuid"))
	asserter.True(os.IsNotExist(err))

	snapshot := filepath.Join(t.TempDir(), "backup.sql")
	require.NoError(t, os.WriteFile(snapshot, []byte("dump"), 0o644))
	_, err = archive.StoreSnapshot(ctx, snapshot)
	if asserter.NoError(err) {
		data, err = store.Get(ctx, SnapshotKey(snapshot))
		asserter.NoError(err)
		asserter.Equal("dump", string(data))
	}
}

func TestArchive_ObjectStore(t *testing.T) {
	asserter := assert.New(t)
	var mu sync.Mutex
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	endpoint, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(endpoint.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	archive := NewArchive(newObjectStore(client, "lifemonitor"), cache.New(cache.NewMemoryBackend()))

	uri, err := archive.StoreCrate(context.Background(), "wf-uuid", "1.0", []byte("zip"))
	if asserter.NoError(err) {
		asserter.Equal("s3://lifemonitor/crates/wf-uuid/1.0/rocrate.zip", uri)
	}
	mu.Lock()
	defer mu.Unlock()
	asserter.Contains(requests, "PUT /lifemonitor/crates/wf-uuid/1.0/rocrate.zip")
}
