package raster

import (
	"bytes"
	"context"
	"image/png"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pdf2img/internal/raster/rastertest"
)

func TestGhostscriptArgs(t *testing.T) {
	args := ghostscriptArgs("/tmp/work", "/tmp/work/input.pdf", 300)

	assert.Contains(t, args, "-sDEVICE=png16m")
	assert.Contains(t, args, "-r300")
	assert.Contains(t, args, "-dSAFER")
	assert.Contains(t, args, "-sOutputFile="+filepath.Join("/tmp/work", "page-%d.png"))
	assert.Equal(t, "/tmp/work/input.pdf", args[len(args)-1])
}

func TestGhostscriptRasterize(t *testing.T) {
	path, err := exec.LookPath("gs")
	if err != nil {
		t.Skip("ghostscript is not installed")
	}

	images, err := NewGhostscript(path, 72).Rasterize(context.Background(), rastertest.MinimalPDF(11))
	require.NoError(t, err)
	require.Len(t, images, 11)

	_, err = png.Decode(bytes.NewReader(images[10]))
	assert.NoError(t, err)
}

func TestGhostscriptMissingBinary(t *testing.T) {
	_, err := NewGhostscript(filepath.Join(t.TempDir(), "no-gs"), 72).Rasterize(context.Background(), rastertest.MinimalPDF(1))
	assert.Error(t, err)
}
