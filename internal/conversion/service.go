package conversion

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const contentTypePDF = "application/pdf"

// ServiceOptions は Service の生成オプションです。
type ServiceOptions struct {
	MaxFileSize int64 // 0 以下なら無制限
	Logger      zerolog.Logger
	Now         func() time.Time
	NewID       func() string
}

// Service は変換ジョブの受付と照会を提供します。
type Service struct {
	records     RecordStore
	pages       PageStore
	scheduler   Scheduler
	maxFileSize int64
	logger      zerolog.Logger
	now         func() time.Time
	newID       func() string
}

// NewService は Service を生成します。
func NewService(records RecordStore, pages PageStore, scheduler Scheduler, opts ServiceOptions) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Service{
		records:     records,
		pages:       pages,
		scheduler:   scheduler,
		maxFileSize: opts.MaxFileSize,
		logger:      opts.Logger.With().Str("component", "conversion").Logger(),
		now:         now,
		newID:       newID,
	}
}

// SubmitConversion は PDF を受け付けて RUNNING のレコードを作成し、
// バックグラウンドで変換を開始します。変換の完了は待ちません。
func (s *Service) SubmitConversion(ctx context.Context, upload Upload) (*Conversion, error) {
	if !isPDFContentType(upload.ContentType) {
		return nil, newError(CodeInvalidInput, "PDFファイルのみアップロードできます。", nil)
	}
	if len(upload.Data) == 0 {
		return nil, newError(CodeInvalidInput, "アップロードされたファイルが空です。", nil)
	}
	if s.maxFileSize > 0 && int64(len(upload.Data)) > s.maxFileSize {
		return nil, newError(CodeLimitExceeded, fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", s.maxFileSize), nil)
	}

	record := &Conversion{
		ID:        s.newID(),
		Filename:  strings.TrimSpace(upload.Filename),
		Status:    StatusRunning,
		StartDate: s.now().UTC(),
	}

	if err := s.pages.SaveSource(ctx, record.ID, upload.Data); err != nil {
		return nil, fmt.Errorf("spool source pdf: %w", err)
	}

	if err := s.records.Create(ctx, record); err != nil {
		s.discardSource(ctx, record.ID)
		return nil, fmt.Errorf("create conversion record: %w", err)
	}

	if err := s.scheduler.Schedule(ctx, record.ID); err != nil {
		// 実行されないジョブが RUNNING のまま残らないようにする
		detached := context.WithoutCancel(ctx)
		if updateErr := s.records.UpdateStatus(detached, record.ID, StatusFailed); updateErr != nil {
			s.logger.Error().Err(updateErr).Str("conversion_id", record.ID).Msg("failed to mark unscheduled conversion as failed")
		}
		s.discardSource(detached, record.ID)
		return nil, fmt.Errorf("schedule conversion %s: %w", record.ID, err)
	}

	s.logger.Info().
		Str("conversion_id", record.ID).
		Str("filename", record.Filename).
		Int("bytes", len(upload.Data)).
		Msg("conversion submitted")

	created := *record
	return &created, nil
}

// GetConversion は id のレコードを返します。
func (s *Service) GetConversion(ctx context.Context, id string) (*Conversion, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, newError(CodeInvalidInput, "id を指定してください。", nil)
	}

	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversion %s: %w", id, err)
	}
	if record == nil {
		return nil, newError(CodeNotFound, "指定された変換は存在しません。", nil)
	}
	return record, nil
}

// GetConversionResults は完了した変換のページ画像をページ順に返します。
func (s *Service) GetConversionResults(ctx context.Context, id string) (*Results, error) {
	record, err := s.GetConversion(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusCompleted {
		return nil, newError(CodePreconditionFailed, fmt.Sprintf("変換はまだ完了していません（状態: %s）。", record.Status), nil)
	}

	images, err := s.pages.LoadPages(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("load pages for %s: %w", record.ID, err)
	}
	if images == nil {
		images = [][]byte{}
	}
	return &Results{ID: record.ID, Images: images}, nil
}

// ListConversions はすべてのレコードを返します。
func (s *Service) ListConversions(ctx context.Context) ([]Conversion, error) {
	records, err := s.records.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	if records == nil {
		records = []Conversion{}
	}
	return records, nil
}

// WriteResultsArchive は完了した変換のページ画像を Page_1.png から始まる名前で zip に書き出します。
func (s *Service) WriteResultsArchive(ctx context.Context, id string, w io.Writer) error {
	results, err := s.GetConversionResults(ctx, id)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for i, image := range results.Images {
		entry, err := zw.Create(ArchiveEntryName(i))
		if err != nil {
			return fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := entry.Write(image); err != nil {
			return fmt.Errorf("write archive entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// ArchiveEntryName は zip 内のページ名を返します。index は 0 始まりです。
func ArchiveEntryName(index int) string {
	return fmt.Sprintf("Page_%d.png", index+1)
}

func (s *Service) discardSource(ctx context.Context, id string) {
	if err := s.pages.DeleteSource(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("conversion_id", id).Msg("failed to discard spooled pdf")
	}
}

func isPDFContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == contentTypePDF
}
