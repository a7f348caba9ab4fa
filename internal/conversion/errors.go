package conversion

import (
	"errors"
	"fmt"
)

// エラーコード
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeConversionFailed   = "CONVERSION_FAILED"
	CodeLimitExceeded      = "LIMIT_EXCEEDED"
)

// レコードストアが返す既知のエラーです。
var (
	ErrRecordNotFound = errors.New("conversion record not found")
	ErrDuplicateID    = errors.New("conversion id already exists")
	ErrStatusFinal    = errors.New("conversion status is already final")
)

// Error は呼び出し元へ返すアプリケーションエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf は err に含まれる *Error のコードを返します。該当しない場合は空文字です。
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
