package raster

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/yourusername/pdf2img/internal/conversion"
)

// Validated は描画前に pdfcpu で PDF を検証し、ページ数の上限を適用します。
type Validated struct {
	next     conversion.Rasterizer
	maxPages int
}

// NewValidated は next を検証で包みます。maxPages が 0 以下なら上限なしです。
func NewValidated(next conversion.Rasterizer, maxPages int) *Validated {
	return &Validated{next: next, maxPages: maxPages}
}

// Rasterize は検証を通過した PDF のみ next に渡します。
func (v *Validated) Rasterize(ctx context.Context, pdf []byte) ([][]byte, error) {
	pages, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if v.maxPages > 0 && pages > v.maxPages {
		return nil, fmt.Errorf("%w: %d pages (max %d)", ErrTooManyPages, pages, v.maxPages)
	}
	return v.next.Rasterize(ctx, pdf)
}

// PageCount は pdfcpu の緩い検証モードで PDF を読み込み、ページ数を返します。
func PageCount(pdf []byte) (int, error) {
	if len(pdf) == 0 {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidPDF)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if pages == 0 {
		return 0, ErrNoPages
	}
	return pages, nil
}
