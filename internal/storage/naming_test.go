package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageFilename(t *testing.T) {
	assert.Equal(t, "Page_0.png", PageFilename(0))
	assert.Equal(t, "Page_11.png", PageFilename(11))
}

func TestParsePageIndex(t *testing.T) {
	tests := []struct {
		name  string
		index int
		ok    bool
	}{
		{name: "Page_0.png", index: 0, ok: true},
		{name: "Page_42.png", index: 42, ok: true},
		{name: "Page_.png", ok: false},
		{name: "page_1.png", ok: false},
		{name: "Page_1.PNG.tmp", ok: false},
		{name: ".tmp-123", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, ok := ParsePageIndex(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.index, index)
			}
		})
	}
}

func TestSortPageNamesIsNumeric(t *testing.T) {
	names := []string{"Page_10.png", "Page_2.png", "notes.txt", "Page_0.png", "Page_1.png", "Page_11.png", "Page_9.png"}

	got := SortPageNames(names)

	assert.Equal(t, []string{"Page_0.png", "Page_1.png", "Page_2.png", "Page_9.png", "Page_10.png", "Page_11.png"}, got)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, validateID("3f2b9c1e-8d4a-4c3b-9a51-2b7e0f6d1c22"))
	for _, id := range []string{"", "../etc", "a/b", `a\b`, "a.b"} {
		assert.ErrorIs(t, validateID(id), ErrInvalidID, id)
	}
}
