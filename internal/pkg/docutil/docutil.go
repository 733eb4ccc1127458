// Package docutil 提供文档目录与文件落盘相关的工具函数。
package docutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrTooLarge 表示下载或上传的内容超过允许的大小。
var ErrTooLarge = errors.New("file exceeds size limit")

// EnsureDir 确保目录存在，如果不存在则创建。
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// FileExists 检查文件是否存在。
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists 检查目录是否存在。
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsHidden 判断文件名是否为隐藏文件（以 . 开头）。
func IsHidden(name string) bool {
	return strings.HasPrefix(filepath.Base(name), ".")
}

// ListFiles 列出目录下（不递归）的普通文件，跳过隐藏文件，按文件名排序。
// extensions 为空时返回全部文件，否则仅返回匹配扩展名（不区分大小写）的文件。
func ListFiles(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	extMap := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extMap[strings.ToLower(ext)] = true
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || IsHidden(e.Name()) {
			continue
		}
		if len(extMap) > 0 && !extMap[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// SafeJoin 将外部提供的文件名安全地拼接到 dir 下，只保留文件名部分。
// 空名、隐藏文件名和 "." / ".." 会被拒绝。
func SafeJoin(dir, name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "/" || base == "." || base == ".." || IsHidden(base) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(dir, base), nil
}

// WriteFileAtomic 先写入同目录下的临时文件再重命名，保证读者看到的要么是旧文件要么是完整的新文件。
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic 与 WriteFileAtomic 相同，但由 fill 负责写入内容。
func WriteAtomic(path string, perm os.FileMode, fill func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err = fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// SaveReader 将 r 的内容原子写入 dest，超过 maxBytes（>0 时生效）返回 ErrTooLarge。
func SaveReader(r io.Reader, dest string, maxBytes int64) error {
	return WriteAtomic(dest, 0o644, func(w io.Writer) error {
		if maxBytes <= 0 {
			_, err := io.Copy(w, r)
			return err
		}
		n, err := io.Copy(w, io.LimitReader(r, maxBytes+1))
		if err != nil {
			return err
		}
		if n > maxBytes {
			return ErrTooLarge
		}
		return nil
	})
}

// DownloadFile 从 URL 下载文件到指定路径。
func DownloadFile(ctx context.Context, client *http.Client, url, dest string, maxBytes int64) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return ErrTooLarge
	}
	return SaveReader(resp.Body, dest, maxBytes)
}
