// Package logging は slog ロガーの構築を担います。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// New は標準エラー出力向けのロガーを作成します。
// logFile が指定されていれば JSON 形式のファイル出力にも書き込みます。
func New(format, logFile string, level slog.Level) (*slog.Logger, func() error) {
	stderrHandler := newHandler(os.Stderr, format, level)
	if logFile == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stderrHandler)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
	return logger, file.Close
}

// NewWithWriters は任意の出力先でロガーを作成します（テスト用）。
func NewWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}

// JobLogs はジョブ単位のログファイルを払い出します。
type JobLogs struct {
	dir    string
	prefix string
	level  slog.Level
	now    func() time.Time
}

// NewJobLogs は JobLogs を作成します。dir が空の場合は nil を返します。
func NewJobLogs(dir, prefix string, level slog.Level) *JobLogs {
	if dir == "" {
		return nil
	}
	return &JobLogs{dir: dir, prefix: prefix, level: level, now: time.Now}
}

// Open は base と同じ内容をジョブ専用ファイルにも書き出すロガーを返します。
// ファイル名は <prefix>_<jobID>_<yyyymmdd_hhmm>.log です。
func (j *JobLogs) Open(base *slog.Logger, jobID string) (*slog.Logger, string, func() error, error) {
	if base == nil {
		base = slog.Default()
	}
	if j == nil {
		return base, "", func() error { return nil }, nil
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return base, "", func() error { return nil }, fmt.Errorf("create log dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.log", j.prefix, jobID, j.now().Format("20060102_1504"))
	path := filepath.Join(j.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return base, "", func() error { return nil }, fmt.Errorf("open job log: %w", err)
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: j.level})
	logger := slog.New(slogmulti.Fanout(base.Handler(), fileHandler)).With("job_id", jobID)
	return logger, path, file.Close, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
