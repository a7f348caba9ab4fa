package conversion

import "context"

// RecordStore は変換レコードの永続化を担います。
//
// GetByID はレコードが存在しない場合 (nil, nil) を返します。
// UpdateStatus は RUNNING からの遷移のみを受け付け、終端状態のレコードには
// ErrStatusFinal、存在しない id には ErrRecordNotFound を返します。
type RecordStore interface {
	Create(ctx context.Context, c *Conversion) error
	GetByID(ctx context.Context, id string) (*Conversion, error)
	GetAll(ctx context.Context) ([]Conversion, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// PageStore は投入された PDF とページ画像の保存先です。
// ページは変換 id ごとに分離され、LoadPages はページ番号の数値順で返します。
type PageStore interface {
	SaveSource(ctx context.Context, id string, data []byte) error
	LoadSource(ctx context.Context, id string) ([]byte, error)
	DeleteSource(ctx context.Context, id string) error
	SavePage(ctx context.Context, id string, index int, data []byte) error
	LoadPages(ctx context.Context, id string) ([][]byte, error)
}

// Rasterizer は PDF のバイト列をページ順の PNG 画像に変換します。
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([][]byte, error)
}

// Scheduler は変換ジョブをバックグラウンド実行に投入します。
// Schedule は実行の完了を待たずに戻ります。
type Scheduler interface {
	Schedule(ctx context.Context, id string) error
}
