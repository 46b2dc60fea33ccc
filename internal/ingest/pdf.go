package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// parsePDF は全ページのテキストを抽出し、ページ間を空行で区切って返します。
// 構造の読み込みとページ数の確認は pdfcpu、フォントのエンコーディングと
// ToUnicode を使った文字の復元は documentloaders.PDF が担当します。
func parsePDF(ctx context.Context, data []byte) (string, error) {
	pages, err := countPDFPages(data)
	if err != nil {
		return "", err
	}
	if pages == 0 {
		return "", nil
	}

	docs, err := loadPDF(ctx, data)
	if err != nil {
		return "", fmt.Errorf("load pdf: %w", err)
	}
	return readableText(joinDocuments(docs)), nil
}

func countPDFPages(data []byte) (int, error) {
	pdfCtx, err := pdfapi.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return pdfCtx.PageCount, nil
}

// loadPDF はローダー内部の panic をエラーに変換します。
func loadPDF(ctx context.Context, data []byte) (docs []schema.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
}

// readableText は復元できなかった文字と制御文字を取り除きます。
// 文字も数字も残らない場合は空文字列を返します。
func readableText(text string) string {
	var (
		b        strings.Builder
		readable bool
	)
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == unicode.ReplacementChar || unicode.IsControl(r):
			continue
		default:
			if unicode.IsLetter(r) || unicode.IsNumber(r) {
				readable = true
			}
			b.WriteRune(r)
		}
	}
	if !readable {
		return ""
	}
	return strings.TrimSpace(b.String())
}
