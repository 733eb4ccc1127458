package docutil_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/pkg/docutil"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, docutil.EnsureDir(dir))
	assert.True(t, docutil.DirExists(dir))

	// 再次调用应该不会报错
	assert.NoError(t, docutil.EnsureDir(dir))
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir"), 0o755))

	for _, name := range []string{"b.txt", "a.PDF", "c.docx", ".hidden.txt", "notes.md", filepath.Join("subdir", "d.txt")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := docutil.ListFiles(dir, []string{".pdf", ".docx", ".txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "c.docx"),
	}, files)

	all, err := docutil.ListFiles(dir, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = docutil.ListFiles(filepath.Join(dir, "missing"), nil)
	assert.Error(t, err)
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"普通文件名", "report.pdf", filepath.Join(dir, "report.pdf"), false},
		{"路径穿越", "../../etc/passwd", filepath.Join(dir, "passwd"), false},
		{"Windows 路径", `C:\docs\a.txt`, filepath.Join(dir, "a.txt"), false},
		{"隐藏文件", ".env", "", true},
		{"空名", "", "", true},
		{"上级目录", "..", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := docutil.SafeJoin(dir, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.bin")

	require.NoError(t, docutil.WriteFileAtomic(path, []byte("v1"), 0o644))
	require.NoError(t, docutil.WriteFileAtomic(path, []byte("v2"), 0o644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteAtomic_FailureKeepsOldContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, docutil.WriteFileAtomic(path, []byte("old"), 0o644))

	err := docutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(content))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveReader_Limit(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, docutil.SaveReader(bytes.NewReader([]byte("12345")), filepath.Join(dir, "ok"), 5))

	err := docutil.SaveReader(bytes.NewReader([]byte("123456")), filepath.Join(dir, "big"), 5)
	assert.ErrorIs(t, err, docutil.ErrTooLarge)
	assert.False(t, docutil.FileExists(filepath.Join(dir, "big")))
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("document body"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, docutil.DownloadFile(context.Background(), srv.Client(), srv.URL+"/doc", dest, 0))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "document body", string(content))

	err = docutil.DownloadFile(context.Background(), srv.Client(), srv.URL+"/missing", dest+".2", 0)
	assert.Error(t, err)

	err = docutil.DownloadFile(context.Background(), srv.Client(), srv.URL+"/doc", dest+".3", 4)
	assert.ErrorIs(t, err, docutil.ErrTooLarge)
}
