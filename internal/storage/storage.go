// Package storage はアップロードされたファイルの保存先を抽象化します。
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrNotFound は指定したキーのオブジェクトが存在しない場合のエラーです。
	ErrNotFound = errors.New("storage: key not found")
	// ErrInvalidKey はキーが空、またはルート外を指す場合のエラーです。
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Storage はオブジェクトの取得・保存・削除を提供します。
// Fetch は Put が返したロケータと生のキーのどちらも受け付けます。
type Storage interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey はキーを正規化し、ルート外へのパスを拒否します。
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	key = strings.ReplaceAll(key, "\\", "/")
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// keyFromLocator はロケータからベースURLを取り除いてキーを返します。
func keyFromLocator(base, locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if base != "" {
		prefix := strings.TrimRight(base, "/") + "/"
		locator = strings.TrimPrefix(locator, prefix)
	}
	return CleanKey(locator)
}
