// Package jobs は変換ジョブをバックグラウンドで実行するスケジューラーを提供します。
package jobs

import (
	"context"
	"errors"
)

const (
	// TaskTypeConversion は Asynq に投入する変換タスクの種別です。
	TaskTypeConversion = "conversion:rasterize"
	// QueueConversion は変換タスクを投入するキュー名です。
	QueueConversion = "conversion"
)

// ErrDispatcherClosed はシャットダウン後に投入されたことを表します。
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Executor は1件の変換を最後まで実行します。
type Executor interface {
	Execute(ctx context.Context, conversionID string) error
}

// TaskPayload は変換タスクのペイロードです。PDF 本体はストレージにスプールされ、id のみを運びます。
type TaskPayload struct {
	ConversionID string `json:"conversionId"`
}
