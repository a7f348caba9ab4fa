package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
)

// Ghostscript は gs コマンド (png16m デバイス) でページを描画します。
type Ghostscript struct {
	path string
	dpi  int
}

// NewGhostscript は path の gs を使う Ghostscript を作成します。
func NewGhostscript(path string, dpi int) *Ghostscript {
	if path == "" {
		path = "gs"
	}
	return &Ghostscript{path: path, dpi: normalizeDPI(dpi)}
}

// Rasterize は一時ディレクトリに全ページを書き出し、ページ順に読み戻します。
func (g *Ghostscript) Rasterize(ctx context.Context, pdf []byte) ([][]byte, error) {
	workDir, err := os.MkdirTemp("", "pdf2img-gs-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(inputPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write input pdf: %w", err)
	}

	cmd := exec.CommandContext(ctx, g.path, ghostscriptArgs(workDir, inputPath, g.dpi)...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ghostscript failed: %s: %w", bytes.TrimSpace(output.Bytes()), err)
	}

	// gs は %d を 1 から連番で埋める
	var images [][]byte
	for page := 1; ; page++ {
		data, err := os.ReadFile(filepath.Join(workDir, fmt.Sprintf("page-%d.png", page)))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", page, err)
		}
		images = append(images, data)
	}
	if len(images) == 0 {
		return nil, ErrNoPages
	}
	return images, nil
}

func ghostscriptArgs(outputDir, inputPath string, dpi int) []string {
	return []string{
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", dpi),
		"-dTextAlphaBits=4",
		"-dGraphicsAlphaBits=4",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dSAFER",
		fmt.Sprintf("-sOutputFile=%s", filepath.Join(outputDir, "page-%d.png")),
		inputPath,
	}
}
