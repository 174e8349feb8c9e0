package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"biztrack/internal/core"
)

func TestChangedFields(t *testing.T) {
	d1, _ := core.ParseTimestamp("2024-03-15T09:00:00Z")
	d2, _ := core.ParseTimestamp("2024-03-16T09:00:00Z")
	status := "paid"

	prev := core.Receipt{ID: "r1", Date: d1, InitialTotal: 10, Tax: 1, Category: "cat1"}
	next := prev
	next.InitialTotal = 12
	next.Date = d2
	next.Status = &status

	assert.Equal(t, []string{"date", "initalTotal", "status"}, changedFields(prev, next))
	assert.Empty(t, changedFields(prev, prev))
}
