package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"biztrack/internal/core"
	"biztrack/internal/grouping"
)

// Record is implemented by every entity the backend stores.
type Record interface {
	RecordID() string
}

// Resource is the CRUD client of one collection.
type Resource[T Record] struct {
	client   *Client
	endpoint Endpoint
}

func NewResource[T Record](c *Client, e Endpoint) *Resource[T] {
	return &Resource[T]{client: c, endpoint: e}
}

func (r *Resource[T]) Endpoint() Endpoint { return r.endpoint }

// List returns every record the user owns.
func (r *Resource[T]) List(ctx context.Context, userID, token string) ([]T, error) {
	req := request{
		resource: r.endpoint.Name,
		method:   http.MethodGet,
		path:     r.endpoint.ListPath(userID),
		token:    token,
	}
	var out []T
	if err := r.client.do(ctx, req, &out); err != nil {
		return nil, dataError(req.op(), err)
	}
	return out, nil
}

// ListGrouped returns the user's records bucketed by f. Group order is
// whatever the backend sent; callers sort with grouping.Sort.
func (r *Resource[T]) ListGrouped(ctx context.Context, userID, token string, f grouping.Filter) ([]grouping.Group[T], error) {
	path, err := r.endpoint.GroupedPath(userID, f)
	if err != nil {
		return nil, err
	}
	req := request{
		resource: r.endpoint.Name,
		method:   http.MethodGet,
		path:     path,
		token:    token,
	}

	var raw map[string]json.RawMessage
	if err := r.client.do(ctx, req, &raw); err != nil {
		return nil, dataError(req.op(), err)
	}

	groups := make([]grouping.Group[T], 0, len(raw))
	for key, msg := range raw {
		records, err := r.decodeGroup(f, msg)
		if err != nil {
			return nil, dataError(req.op(), &Error{Op: req.op(), Kind: ErrDecoding, Status: http.StatusOK, Err: err})
		}
		groups = append(groups, grouping.Group[T]{Key: key, Records: records})
	}
	return groups, nil
}

func (r *Resource[T]) decodeGroup(f grouping.Filter, msg json.RawMessage) ([]T, error) {
	if r.endpoint.Nested(f) {
		var nested map[string][]T
		if err := json.Unmarshal(msg, &nested); err != nil {
			return nil, err
		}
		return nested[r.endpoint.NestKey], nil
	}
	var records []T
	if err := json.Unmarshal(msg, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Find returns the user's record with id. Grouped collections have no
// single-record route, so they are searched through their daily grouping;
// the others through their flat list.
func (r *Resource[T]) Find(ctx context.Context, userID, token, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, &Error{Op: "find " + r.endpoint.Name, Kind: ErrInvalidURL, Err: core.ErrEmptyID}
	}

	var records []T
	if r.endpoint.Grouped() {
		groups, err := r.ListGrouped(ctx, userID, token, grouping.Day)
		if err != nil {
			return zero, err
		}
		records = grouping.Flatten(groups)
	} else {
		list, err := r.List(ctx, userID, token)
		if err != nil {
			return zero, err
		}
		records = list
	}

	for _, rec := range records {
		if rec.RecordID() == id {
			return rec, nil
		}
	}
	return zero, &Error{Op: "find " + r.endpoint.Name + " " + id, Kind: ErrNotFound}
}

// Get fetches one record. Any non-200 status is ErrNotFound.
func (r *Resource[T]) Get(ctx context.Context, id, token string) (T, error) {
	var zero T
	if id == "" {
		return zero, &Error{Op: "GET " + r.endpoint.RecordPath(id), Kind: ErrInvalidURL, Err: core.ErrEmptyID}
	}
	req := request{
		resource: r.endpoint.Name,
		method:   http.MethodGet,
		path:     r.endpoint.RecordPath(id),
		token:    token,
	}
	var out T
	if err := r.client.do(ctx, req, &out); err != nil {
		return zero, notFound(err)
	}
	return out, nil
}

// Create posts rec. The backend's echo is returned when it sends one,
// otherwise rec itself.
func (r *Resource[T]) Create(ctx context.Context, rec T, token string) (T, error) {
	return write(ctx, r.client, request{
		resource: r.endpoint.Name,
		method:   http.MethodPost,
		path:     r.endpoint.CreatePath(),
		token:    token,
		body:     rec,
	}, rec)
}

// Update sends rec as a full replacement.
func (r *Resource[T]) Update(ctx context.Context, rec T, token string) (T, error) {
	req := request{
		resource: r.endpoint.Name,
		method:   http.MethodPut,
		path:     r.endpoint.UpdatePath(rec.RecordID()),
		token:    token,
		body:     rec,
	}
	if r.endpoint.UpdateByID && rec.RecordID() == "" {
		return rec, &Error{Op: req.op(), Kind: ErrInvalidURL, Err: core.ErrEmptyID}
	}
	return write(ctx, r.client, req, rec)
}

func write[T any](ctx context.Context, c *Client, req request, sent T) (T, error) {
	status, data, err := c.send(ctx, req)
	if err != nil {
		return sent, err
	}
	if status != http.StatusOK {
		return sent, &Error{Op: req.op(), Kind: ErrInvalidResponse, Status: status}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return sent, nil
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return sent, &Error{Op: req.op(), Kind: ErrDecoding, Status: status, Err: err}
	}
	return out, nil
}

func notFound(err error) error {
	apiErr, ok := err.(*Error)
	if !ok || apiErr.Kind != ErrInvalidResponse {
		return err
	}
	return &Error{Op: apiErr.Op, Kind: ErrNotFound, Status: apiErr.Status}
}
