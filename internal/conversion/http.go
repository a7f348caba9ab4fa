package conversion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// multipart のヘッダーや境界文字列の分だけ本文の上限に余裕を持たせる
const multipartOverhead = 1 << 20

// API は HTTP ハンドラーが利用する変換サービスです。
type API interface {
	SubmitConversion(ctx context.Context, upload Upload) (*Conversion, error)
	GetConversion(ctx context.Context, id string) (*Conversion, error)
	GetConversionResults(ctx context.Context, id string) (*Results, error)
	ListConversions(ctx context.Context) ([]Conversion, error)
	WriteResultsArchive(ctx context.Context, id string, w io.Writer) error
}

// HandlerOptions はハンドラーの設定です。
type HandlerOptions struct {
	MaxFileSize int64
	Logger      zerolog.Logger
}

// RegisterRoutes は変換 API のルートを登録します。
func RegisterRoutes(routes gin.IRoutes, svc API, opts HandlerOptions) {
	routes.GET("/conversions", ListHandler(svc, opts))
	routes.POST("/conversion", SubmitHandler(svc, opts))
	routes.GET("/conversion", StatusHandler(svc, opts))
	routes.GET("/conversion/results", ResultsHandler(svc, opts))
	routes.GET("/conversion/results/archive", ArchiveHandler(svc, opts))
}

// ListHandler は GET /conversions のハンドラーを返します。
func ListHandler(svc API, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := svc.ListConversions(c.Request.Context())
		if err != nil {
			respondWithError(c, opts.Logger, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

// SubmitHandler は POST /conversion のハンドラーを返します。
// ファイルは multipart の file（pdf_file, files も可）で受け取ります。
// パートの Content-Type が application/pdf 以外なら 400 です。ただし Content-Type が
// 無いか application/octet-stream の場合は中身から判定し、PDF なら受け付けます。
func SubmitHandler(svc API, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.MaxFileSize > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxFileSize+multipartOverhead)
		}

		form, err := c.MultipartForm()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondWithError(c, opts.Logger, limitExceeded(opts.MaxFileSize))
				return
			}
			respondWithError(c, opts.Logger, newError(CodeInvalidInput, "multipart/form-data でPDFファイルを送信してください。", err))
			return
		}
		defer form.RemoveAll()

		header, err := extractSingleFile(form)
		if err != nil {
			respondWithError(c, opts.Logger, err)
			return
		}
		if opts.MaxFileSize > 0 && header.Size > opts.MaxFileSize {
			respondWithError(c, opts.Logger, limitExceeded(opts.MaxFileSize))
			return
		}

		data, err := readFormFile(header)
		if err != nil {
			respondWithError(c, opts.Logger, err)
			return
		}

		record, err := svc.SubmitConversion(c.Request.Context(), Upload{
			Filename:    header.Filename,
			ContentType: detectContentType(header.Header.Get("Content-Type"), data),
			Data:        data,
		})
		if err != nil {
			respondWithError(c, opts.Logger, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// StatusHandler は GET /conversion?id= のハンドラーを返します。
func StatusHandler(svc API, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := svc.GetConversion(c.Request.Context(), c.Query("id"))
		if err != nil {
			respondWithError(c, opts.Logger, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// ResultsHandler は GET /conversion/results?id= のハンドラーを返します。
func ResultsHandler(svc API, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := svc.GetConversionResults(c.Request.Context(), c.Query("id"))
		if err != nil {
			respondWithError(c, opts.Logger, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

// ArchiveHandler は GET /conversion/results/archive?id= のハンドラーを返します。
func ArchiveHandler(svc API, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Query("id"))

		// エラー時に JSON を返せるよう、書き出しが終わるまでバッファに溜める
		var buf bytes.Buffer
		if err := svc.WriteResultsArchive(c.Request.Context(), id, &buf); err != nil {
			respondWithError(c, opts.Logger, err)
			return
		}

		filename := fmt.Sprintf("%s.zip", id)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "application/zip", buf.Bytes())
	}
}

func respondWithError(c *gin.Context, logger zerolog.Logger, err error) {
	var appErr *Error
	switch {
	case errors.As(err, &appErr) && appErr.Code != CodeConversionFailed:
		status := http.StatusBadRequest
		switch appErr.Code {
		case CodeNotFound:
			status = http.StatusNotFound
		case CodeLimitExceeded:
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func limitExceeded(maxFileSize int64) error {
	return newError(CodeLimitExceeded, fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxFileSize), nil)
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form != nil {
		for _, field := range []string{"file", "pdf_file", "files", "file[]", "files[]"} {
			if files := form.File[field]; len(files) > 0 {
				return files[0], nil
			}
		}
	}
	return nil, newError(CodeInvalidInput, "PDFファイルを選択してください。", nil)
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}
	return data, nil
}

// detectContentType は申告された Content-Type を優先し、
// 申告がないか汎用の application/octet-stream の場合のみ中身から判定します。
func detectContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(strings.ToLower(declared), "application/octet-stream") {
		return declared
	}
	return mimetype.Detect(data).String()
}
