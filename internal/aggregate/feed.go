package aggregate

import (
	"github.com/shopspring/decimal"

	"biztrack/internal/core"
	"biztrack/internal/grouping"
)

// Lookup table names.
const (
	LookupClients    = "clients"
	LookupCategories = "categories"
	LookupVehicles   = "vehicles"
)

// Feed is the joined result of one aggregate fetch, ready for display.
type Feed[R any] struct {
	Entity string
	Filter grouping.Filter
	// Groups are sorted; Rows is Groups flattened in the same order.
	Groups []grouping.Group[R]
	Rows   []R
	Names  map[string]core.NameIndex
	// LookupErrors holds the lookups that failed. Their names resolve to Unknown.
	LookupErrors map[string]error
	Total        decimal.Decimal
	// Generation is set by the Latest helpers.
	Generation uint64
}

// Partial reports whether some names could not be resolved because a lookup failed.
func (f *Feed[R]) Partial() bool { return len(f.LookupErrors) > 0 }

// Empty reports whether the fetch returned no records.
func (f *Feed[R]) Empty() bool { return len(f.Rows) == 0 }

type ReceiptRow struct {
	core.Receipt
	ClientName   string `json:"clientName"`
	CategoryName string `json:"categoryName"`
}

type JobRow struct {
	core.Job
	ClientName string `json:"clientName"`
}

type TripLogRow struct {
	core.TripLog
	ClientName  string `json:"clientName"`
	VehicleName string `json:"vehicleName"`
}
