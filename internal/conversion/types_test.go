package conversion

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusRunning.Valid())
	assert.True(t, StatusCompleted.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, Status("queued").Valid())

	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusRunning, StatusCompleted))
	assert.True(t, CanTransition(StatusRunning, StatusFailed))
	assert.False(t, CanTransition(StatusRunning, StatusRunning))
	assert.False(t, CanTransition(StatusCompleted, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusRunning))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", newError(CodeNotFound, "missing", cause))

	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "NOT_FOUND: missing: boom")
	assert.Empty(t, CodeOf(cause))
	assert.Equal(t, "INVALID_INPUT: bad", newError(CodeInvalidInput, "bad", nil).Error())
}

func TestArchiveEntryName(t *testing.T) {
	assert.Equal(t, "Page_1.png", ArchiveEntryName(0))
	assert.Equal(t, "Page_12.png", ArchiveEntryName(11))
}

func TestIsPDFContentType(t *testing.T) {
	assert.True(t, isPDFContentType("application/pdf"))
	assert.True(t, isPDFContentType("Application/PDF; charset=binary"))
	assert.False(t, isPDFContentType("text/plain"))
	assert.False(t, isPDFContentType(""))
}

func TestDetectContentType(t *testing.T) {
	pdf := []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")

	assert.Equal(t, "application/pdf", detectContentType("", pdf))
	assert.Equal(t, "application/pdf", detectContentType("application/octet-stream", pdf))
	// 申告された型は常に優先する
	assert.Equal(t, "text/plain", detectContentType("text/plain", pdf))
	assert.NotEqual(t, "application/pdf", detectContentType("", []byte("just text")))
}
