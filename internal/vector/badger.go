package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const keyPrefix = "vec/"

// BadgerIndex は BadgerDB に保存する Index 実装です。
type BadgerIndex struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger は slog.Logger を badger.Logger に合わせるアダプタです。
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger はインデックスを開きます。dir が空ならインメモリで動作します。
func OpenBadger(dir string, logger *slog.Logger) (*BadgerIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "vector-index")

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vector dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerIndex{db: db, logger: logger}, nil
}

// Close はデータベースを閉じます。
func (b *BadgerIndex) Close() error {
	return b.db.Close()
}

// Upsert は1トランザクションでベクトルを書き込みます。同じ ID は上書きされます。
func (b *BadgerIndex) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if namespace == "" {
		return ErrInvalidNamespace
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, v := range vectors {
			if v.ID == "" {
				return fmt.Errorf("vector id is required")
			}
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if err := txn.Set(vectorKey(namespace, v.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %d vectors into %s: %w", len(vectors), namespace, err)
	}
	b.logger.Debug("vectors upserted", "namespace", namespace, "count", len(vectors))
	return nil
}

// DescribeStats は名前空間のベクトル件数と次元を返します。
func (b *BadgerIndex) DescribeStats(ctx context.Context, namespace string) (*Stats, error) {
	if namespace == "" {
		return nil, ErrInvalidNamespace
	}
	stats := &Stats{Namespace: namespace}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = namespacePrefix(namespace)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if stats.VectorCount == 0 {
				err := iter.Item().Value(func(val []byte) error {
					var v Vector
					if err := json.Unmarshal(val, &v); err != nil {
						return err
					}
					stats.Dimension = len(v.Values)
					return nil
				})
				if err != nil {
					return err
				}
			}
			stats.VectorCount++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", namespace, err)
	}
	return stats, nil
}

// namespacePrefix は区切り文字 "/" をエスケープし、名前空間同士が前方一致しないようにします。
func namespacePrefix(namespace string) []byte {
	return []byte(keyPrefix + url.PathEscape(namespace) + "/")
}

func vectorKey(namespace, id string) []byte {
	return append(namespacePrefix(namespace), id...)
}
