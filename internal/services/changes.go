package services

import (
	"slices"

	"github.com/r3labs/diff/v3"
)

// changedFields names the top-level JSON fields that differ between prev
// and next, in struct order.
func changedFields(prev, next any) []string {
	changelog, err := diff.Diff(prev, next, diff.TagName("json"))
	if err != nil {
		return nil
	}
	var out []string
	for _, c := range changelog {
		if len(c.Path) == 0 || slices.Contains(out, c.Path[0]) {
			continue
		}
		out = append(out, c.Path[0])
	}
	return out
}
