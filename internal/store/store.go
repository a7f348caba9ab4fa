// Package store は変換レコードの保存先（メモリ・SQLite・PostgreSQL・Redis）を提供します。
package store

import (
	"fmt"
	"sort"

	"github.com/yourusername/pdf2img/internal/conversion"
)

func sortByStartDate(records []conversion.Conversion) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].StartDate.Equal(records[j].StartDate) {
			return records[i].ID < records[j].ID
		}
		return records[i].StartDate.Before(records[j].StartDate)
	})
}

func validateNew(c *conversion.Conversion) error {
	if c == nil {
		return fmt.Errorf("conversion is nil")
	}
	if c.ID == "" {
		return fmt.Errorf("conversion id is required")
	}
	if !c.Status.Valid() {
		return fmt.Errorf("invalid conversion status: %q", c.Status)
	}
	return nil
}

func validateTarget(status conversion.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not a final status", status)
	}
	return nil
}
