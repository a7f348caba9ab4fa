package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const inboxDirName = "_inbox"

// Local はローカルファイルシステムに保存します。
//
//	<root>/<id>/Page_<n>.png
//	<root>/_inbox/<id>.pdf
type Local struct {
	root string
}

// NewLocal は root 以下に保存する Local を作成します。
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, inboxDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root は保存先のディレクトリを返します。
func (l *Local) Root() string {
	return l.root
}

// SaveSource は変換前の PDF を受付ディレクトリに保存します。
func (l *Local) SaveSource(ctx context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	return writeFileAtomic(l.sourcePath(id), data)
}

// LoadSource は受付ディレクトリの PDF を読み込みます。
func (l *Local) LoadSource(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.sourcePath(id))
	if err != nil {
		return nil, fmt.Errorf("read source pdf: %w", err)
	}
	return data, nil
}

// DeleteSource は受付ディレクトリの PDF を削除します。存在しない場合は何もしません。
func (l *Local) DeleteSource(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(l.sourcePath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove source pdf: %w", err)
	}
	return nil
}

// SavePage はページ画像を保存します。
func (l *Local) SavePage(ctx context.Context, id string, index int, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("invalid page index: %d", index)
	}
	dir := filepath.Join(l.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create page directory: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, PageFilename(index)), data)
}

// LoadPages はページ画像をページ番号順に読み込みます。
// ディレクトリが存在しない場合は空のスライスを返します。
func (l *Local) LoadPages(ctx context.Context, id string) ([][]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(l.root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return [][]byte{}, nil
		}
		return nil, fmt.Errorf("list pages: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}

	sorted := SortPageNames(names)
	images := make([][]byte, 0, len(sorted))
	for _, name := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", name, err)
		}
		images = append(images, data)
	}
	return images, nil
}

func (l *Local) sourcePath(id string) string {
	return filepath.Join(l.root, inboxDirName, id+".pdf")
}

// writeFileAtomic は一時ファイルに書いてから rename し、読み手に書きかけのファイルを見せません。
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
