// Package storage は投入された PDF と変換後のページ画像の保存先を提供します。
package storage

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	pagePrefix    = "Page_"
	pageExtension = ".png"
)

var pageNamePattern = regexp.MustCompile(`^Page_(\d+)\.png$`)

// ErrInvalidID は保存先のパスに使えない変換 id を表します。
var ErrInvalidID = errors.New("invalid conversion id")

// PageFilename は0始まりのページ番号からファイル名を返します。
func PageFilename(index int) string {
	return fmt.Sprintf("%s%d%s", pagePrefix, index, pageExtension)
}

// ParsePageIndex はファイル名からページ番号を取り出します。
// 命名規則に合わないファイル名の場合は ok が false になります。
func ParsePageIndex(name string) (index int, ok bool) {
	match := pageNamePattern.FindStringSubmatch(name)
	if match == nil {
		return 0, false
	}
	index, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return index, true
}

// SortPageNames はページ画像のファイル名を数値順に並べて返します。
// 命名規則に合わない名前は除外されます。Page_10 は Page_9 の後になります。
func SortPageNames(names []string) []string {
	type page struct {
		name  string
		index int
	}
	pages := make([]page, 0, len(names))
	for _, name := range names {
		if index, ok := ParsePageIndex(name); ok {
			pages = append(pages, page{name: name, index: index})
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].index < pages[j].index
	})

	sorted := make([]string, len(pages))
	for i, p := range pages {
		sorted[i] = p.name
	}
	return sorted
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
