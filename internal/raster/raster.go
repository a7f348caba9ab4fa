// Package raster は PDF をページごとの PNG 画像に変換するラスタライザーを提供します。
package raster

import (
	"errors"
	"fmt"

	"github.com/yourusername/pdf2img/internal/conversion"
)

// ラスタライザー種別
const (
	KindFitz        = "fitz"
	KindGhostscript = "ghostscript"
)

// DefaultDPI は DPI 未指定時の解像度です。
const DefaultDPI = 150

// 入力 PDF の検証エラーです。
var (
	ErrInvalidPDF   = errors.New("invalid pdf")
	ErrNoPages      = errors.New("pdf has no pages")
	ErrTooManyPages = errors.New("pdf has too many pages")
)

// Options はラスタライザーの設定です。
type Options struct {
	Kind            string
	DPI             int
	GhostscriptPath string
	MaxPages        int // 0 以下なら無制限
}

// New は opts.Kind のラスタライザーを pdfcpu の検証で包んで返します。
func New(opts Options) (conversion.Rasterizer, error) {
	var inner conversion.Rasterizer
	switch opts.Kind {
	case "", KindFitz:
		inner = NewFitz(opts.DPI)
	case KindGhostscript:
		inner = NewGhostscript(opts.GhostscriptPath, opts.DPI)
	default:
		return nil, fmt.Errorf("unknown rasterizer: %q", opts.Kind)
	}
	return NewValidated(inner, opts.MaxPages), nil
}

func normalizeDPI(dpi int) int {
	if dpi <= 0 {
		return DefaultDPI
	}
	return dpi
}
