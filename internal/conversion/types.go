// Package conversion は PDF→画像変換ジョブのライフサイクル（受付・実行・結果取得）を提供します。
package conversion

import "time"

// Status は変換ジョブの状態を表します。
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Valid は既知の状態かどうかを返します。
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal は終端状態（COMPLETED / FAILED）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition は from から to への遷移が許されるかを返します。
// RUNNING から終端状態への遷移のみが許されます。
func CanTransition(from, to Status) bool {
	return from == StatusRunning && to.Terminal()
}

// Conversion は投入された PDF 1件ごとの変換レコードです。
type Conversion struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    Status    `json:"status"`
	StartDate time.Time `json:"start_date"`
}

// Results は完了した変換のページ画像をページ順に保持します。
// Images は JSON では base64 文字列の配列になります。
type Results struct {
	ID     string   `json:"id"`
	Images [][]byte `json:"images"`
}

// Upload はアップロードされた PDF を表します。
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
