package connection_test

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/sagarc03/sluice"
	"github.com/sagarc03/sluice/connection"
	"github.com/sagarc03/sluice/filesystem"
	"github.com/sagarc03/sluice/stream"
	"github.com/stretchr/testify/require"
)

// mapFS adapts fstest.MapFS to sluice.FileSystem and counts opens.
type mapFS struct {
	fstest.MapFS
	opened atomic.Int32
}

func (m *mapFS) Stat(_ context.Context, name string) (fs.FileInfo, error) {
	return m.MapFS.Stat(strings.TrimPrefix(name, "/"))
}

func (m *mapFS) Open(name string) (sluice.File, error) {
	f, err := m.MapFS.Open(strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, err
	}
	m.opened.Add(1)
	return f.(sluice.File), nil
}

// newStore writes files (slash paths relative to the root) into a temp dir.
func newStore(t *testing.T, files map[string]string) *filesystem.Store {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	return filesystem.NewFileStorage(root)
}

type conn struct {
	rec *httptest.ResponseRecorder
	d   *stream.Duplex
	w   *connection.Writable
}

func newConn(t *testing.T, req *http.Request, opts ...connection.Option) *conn {
	t.Helper()

	rec := httptest.NewRecorder()
	d := stream.NewDuplex(rec, req)
	t.Cleanup(func() {
		d.Destroy()
		d.Wait()
	})

	return &conn{rec: rec, d: d, w: connection.NewWritable(d, req, opts...)}
}
