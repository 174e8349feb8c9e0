package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"biztrack/internal/core"
)

// Receipts adds the report endpoints to the receipt resource.
type Receipts struct {
	*Resource[core.Receipt]
}

func NewReceipts(c *Client) *Receipts {
	return &Receipts{Resource: NewResource[core.Receipt](c, ReceiptsEndpoint)}
}

// Total returns the server-side sum of the user's receipts.
func (r *Receipts) Total(ctx context.Context, userID, token string) (decimal.Decimal, error) {
	req := request{
		resource: r.endpoint.Name,
		method:   http.MethodGet,
		path:     pathOf(r.endpoint.ListPrefix, "user", userID, "total"),
		token:    token,
	}
	var body struct {
		Total decimal.Decimal `json:"total"`
	}
	if err := r.client.do(ctx, req, &body); err != nil {
		return decimal.Zero, err
	}
	return body.Total, nil
}

// CategoryPDF downloads the per-category receipt report.
func (r *Receipts) CategoryPDF(ctx context.Context, userID, token string) ([]byte, error) {
	req := request{
		resource: r.endpoint.Name,
		method:   http.MethodGet,
		path:     pathOf(r.endpoint.ListPrefix, "user", userID, "category", "pdf"),
		token:    token,
		accept:   "application/pdf",
	}
	status, data, err := r.client.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &Error{Op: req.op(), Kind: ErrInvalidResponse, Status: status}
	}
	return data, nil
}
