package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// Kind はパーサーの種別です。
type Kind int

const (
	KindText Kind = iota
	KindPDF
	KindCSV
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindCSV:
		return "csv"
	default:
		return "text"
	}
}

// KindOf は拡張子からパーサーを選びます。未知の拡張子はテキストとして扱います。
// 名前にもロケータにも拡張子が無い場合のみ、内容から判定します。
func KindOf(name, locator string, data []byte) Kind {
	ext := extension(name)
	if ext == "" {
		ext = extension(locatorPath(locator))
	}
	switch ext {
	case ".pdf":
		return KindPDF
	case ".csv":
		return KindCSV
	case "":
		return sniffKind(data)
	default:
		return KindText
	}
}

// Parse は文書を1つのテキスト本文に変換します。
func Parse(ctx context.Context, kind Kind, data []byte) (string, error) {
	switch kind {
	case KindPDF:
		return parsePDF(ctx, data)
	case KindCSV:
		return parseCSV(ctx, data)
	default:
		return parseText(ctx, data)
	}
}

// parseCSV は各行を "列名: 値" の形式に展開し、行ごとに空行で区切ります。
func parseCSV(ctx context.Context, data []byte) (string, error) {
	docs, err := documentloaders.NewCSV(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load csv: %w", err)
	}
	return joinDocuments(docs), nil
}

func parseText(ctx context.Context, data []byte) (string, error) {
	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load text: %w", err)
	}
	return joinDocuments(docs), nil
}

func joinDocuments(docs []schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if s := strings.TrimSpace(d.PageContent); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func sniffKind(data []byte) Kind {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return KindPDF
	case mt.Is("text/csv"):
		return KindCSV
	default:
		return KindText
	}
}

func extension(name string) string {
	return strings.ToLower(path.Ext(strings.TrimSpace(name)))
}

func locatorPath(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		return u.Path
	}
	return locator
}
