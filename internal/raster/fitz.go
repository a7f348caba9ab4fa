package raster

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// Fitz は MuPDF (go-fitz) でページを描画します。
type Fitz struct {
	dpi int
}

// NewFitz は dpi で描画する Fitz を作成します。
func NewFitz(dpi int) *Fitz {
	return &Fitz{dpi: normalizeDPI(dpi)}
}

// Rasterize は全ページを PNG にエンコードしてページ順に返します。
func (f *Fitz) Rasterize(ctx context.Context, pdf []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, ErrNoPages
	}

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	images := make([][]byte, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(pageNum, float64(f.dpi))
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", pageNum+1, err)
		}

		var buf bytes.Buffer
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", pageNum+1, err)
		}
		images = append(images, buf.Bytes())
	}
	return images, nil
}
