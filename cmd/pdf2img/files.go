package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/pdf2img/internal/client"
	"github.com/yourusername/pdf2img/internal/conversion"
)

// writePages はページ画像を dir に Page_1.png から順に書き出します。
func writePages(dir string, images [][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for i, image := range images {
		path := filepath.Join(dir, conversion.ArchiveEntryName(i))
		if err := os.WriteFile(path, image, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// saveArchive は zip を dir/<id>.zip に保存してそのパスを返します。
// 失敗した場合は書きかけのファイルを残しません。
func saveArchive(ctx context.Context, api *client.Client, id, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(id)+".zip")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	err = api.Archive(ctx, id, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
