package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Local はローカルファイルシステムに保存する Storage 実装です。
// キーはルートディレクトリからの相対パスに対応します。
type Local struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

// NewLocal は Local を作成します。root はディレクトリが無ければ作成されます。
func NewLocal(root, baseURL string, logger *slog.Logger) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "storage", "backend", "local"),
	}, nil
}

// Root は保存先ディレクトリを返します。
func (l *Local) Root() string {
	return l.root
}

// Fetch はファイルの内容を返します。
func (l *Local) Fetch(ctx context.Context, locator string) ([]byte, error) {
	key, err := keyFromLocator(l.baseURL, locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Put は一時ファイルに書き込んでからリネームし、ロケータを返します。
func (l *Local) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	l.logger.Debug("object stored", "key", key, "size", len(data), "content_type", contentType)
	return l.locator(key), nil
}

// Delete はファイルを削除します。存在しない場合は何もしません。
func (l *Local) Delete(ctx context.Context, key string) error {
	key, err := keyFromLocator(l.baseURL, key)
	if err != nil {
		return err
	}
	full := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}

	dir := filepath.Dir(full)
	if dir != l.root && strings.HasPrefix(dir, l.root) {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
			if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				l.logger.Warn("failed to remove empty directory", "dir", dir, "error", err)
			}
		}
	}
	return nil
}

func (l *Local) locator(key string) string {
	if l.baseURL == "" {
		return key
	}
	return l.baseURL + "/" + key
}
