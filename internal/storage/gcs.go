package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS は Google Cloud Storage に保存します。
//
//	<prefix>results/<id>/Page_<n>.png
//	<prefix>inbox/<id>.pdf
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	owned  bool
}

// NewGCS はアプリケーションデフォルト認証で GCS クライアントを作成します。
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	g := NewGCSWithClient(client, bucket, prefix)
	g.owned = true
	return g, nil
}

// NewGCSWithClient は既存のクライアントを使う GCS を作成します。
func NewGCSWithClient(client *storage.Client, bucket, prefix string) *GCS {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GCS{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: prefix,
	}
}

// Close は NewGCS が作成したクライアントを閉じます。
func (g *GCS) Close() error {
	if !g.owned {
		return nil
	}
	return g.client.Close()
}

// SaveSource は変換前の PDF を inbox に保存します。
func (g *GCS) SaveSource(ctx context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	return g.write(ctx, g.sourceObject(id), "application/pdf", data)
}

// LoadSource は inbox の PDF を読み込みます。
func (g *GCS) LoadSource(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return g.read(ctx, g.sourceObject(id))
}

// DeleteSource は inbox の PDF を削除します。存在しない場合は何もしません。
func (g *GCS) DeleteSource(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	err := g.bucket.Object(g.sourceObject(id)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object: %w", err)
	}
	return nil
}

// SavePage はページ画像を保存します。
func (g *GCS) SavePage(ctx context.Context, id string, index int, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("invalid page index: %d", index)
	}
	return g.write(ctx, g.pagesPrefix(id)+PageFilename(index), "image/png", data)
}

// LoadPages は results/<id>/ 以下のページ画像をページ番号順に読み込みます。
func (g *GCS) LoadPages(ctx context.Context, id string) ([][]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	prefix := g.pagesPrefix(id)
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gcs objects: %w", err)
		}
		names = append(names, path.Base(attrs.Name))
	}

	sorted := SortPageNames(names)
	images := make([][]byte, 0, len(sorted))
	for _, name := range sorted {
		data, err := g.read(ctx, prefix+name)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// write は object を書き込みます。書き込みに失敗した場合は context を取り消してアップロードを破棄します。
func (g *GCS) write(ctx context.Context, object, contentType string, data []byte) error {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := g.bucket.Object(object).NewWriter(writeCtx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		cancel()
		return fmt.Errorf("write gcs object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", object, err)
	}
	return nil
}

func (g *GCS) read(ctx context.Context, object string) ([]byte, error) {
	reader, err := g.bucket.Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object %s: %w", object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", object, err)
	}
	return data, nil
}

func (g *GCS) sourceObject(id string) string {
	return g.prefix + "inbox/" + id + ".pdf"
}

func (g *GCS) pagesPrefix(id string) string {
	return g.prefix + "results/" + id + "/"
}
