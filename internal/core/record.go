package core

import "time"

// RecordID identifies records for path building.
func (c Client) RecordID() string   { return c.ID }
func (c Category) RecordID() string { return c.ID }
func (v Vehicle) RecordID() string  { return v.ID }
func (r Receipt) RecordID() string  { return r.ID }
func (j Job) RecordID() string      { return j.ID }
func (t TripLog) RecordID() string  { return t.ID }
func (u User) RecordID() string     { return u.ID }

// SortTime is the timestamp records are ordered by within a group.
func (r Receipt) SortTime() time.Time { return r.Date.Time }
func (j Job) SortTime() time.Time     { return j.Start.Time }
func (t TripLog) SortTime() time.Time { return t.Date.Time }
