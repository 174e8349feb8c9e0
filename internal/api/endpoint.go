package api

import (
	"fmt"

	"biztrack/internal/grouping"
)

// Endpoint is the path template of one backend collection.
type Endpoint struct {
	// Name labels logs and metrics.
	Name       string
	Collection string
	// ListPrefix is the collection name used by per-user list routes.
	// It differs from Collection for trip logs.
	ListPrefix string
	// Segments maps each grouping filter onto its route segment.
	// Empty for collections that are only listed flat.
	Segments [5]string
	// NestKey is the field grouped records sit under for time-based filters.
	NestKey    string
	UpdateByID bool
}

var (
	ClientsEndpoint = Endpoint{
		Name:       "clients",
		Collection: "clients",
		ListPrefix: "clients",
	}
	CategoriesEndpoint = Endpoint{
		Name:       "categories",
		Collection: "categories",
		ListPrefix: "categories",
	}
	VehiclesEndpoint = Endpoint{
		Name:       "vehicles",
		Collection: "vehicles",
		ListPrefix: "vehicles",
	}
	ReceiptsEndpoint = Endpoint{
		Name:       "receipts",
		Collection: "receipts",
		ListPrefix: "receipts",
		Segments:   [5]string{"daily", "monthly", "yearly", "category", "client"},
		UpdateByID: true,
	}
	JobsEndpoint = Endpoint{
		Name:       "jobs",
		Collection: "jobs",
		ListPrefix: "jobs",
		Segments:   [5]string{"daily", "monthly", "yearly", "projects", "clients"},
		NestKey:    "jobs",
		UpdateByID: true,
	}
	TripLogsEndpoint = Endpoint{
		Name:       "triplogs",
		Collection: "triplogs",
		ListPrefix: "triplog",
		Segments:   [5]string{"daily", "monthly", "yearly", "vehicles", "clients"},
		NestKey:    "tripLogs",
		UpdateByID: true,
	}
)

// Grouped reports whether the collection has grouped list routes.
func (e Endpoint) Grouped() bool { return e.Segments[grouping.Day] != "" }

// Segment returns the route segment for f.
func (e Endpoint) Segment(f grouping.Filter) (string, error) {
	if _, err := grouping.ParseFilter(int(f)); err != nil {
		return "", err
	}
	if !e.Grouped() {
		return "", fmt.Errorf("%s: %w: not grouped", e.Name, grouping.ErrInvalidFilter)
	}
	return e.Segments[f], nil
}

// Nested reports whether grouped responses for f wrap records under NestKey.
func (e Endpoint) Nested(f grouping.Filter) bool {
	return e.NestKey != "" && f.IsTimeBased()
}

func (e Endpoint) ListPath(userID string) string {
	return pathOf(e.ListPrefix, "user", userID)
}

func (e Endpoint) GroupedPath(userID string, f grouping.Filter) (string, error) {
	seg, err := e.Segment(f)
	if err != nil {
		return "", err
	}
	return pathOf(e.ListPrefix, "user", userID, seg), nil
}

func (e Endpoint) RecordPath(id string) string {
	return pathOf(e.Collection, id)
}

func (e Endpoint) CreatePath() string {
	return pathOf(e.Collection)
}

func (e Endpoint) UpdatePath(id string) string {
	if e.UpdateByID {
		return pathOf(e.Collection, id)
	}
	return pathOf(e.Collection)
}
