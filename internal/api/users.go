package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"biztrack/internal/core"
)

// LoginResult is what the backend hands out on a successful login.
type LoginResult struct {
	Token       string           `json:"token"`
	UserID      string           `json:"userId"`
	AccountType core.AccountType `json:"accountType"`
}

// Users talks to the account and auth endpoints.
type Users struct {
	client *Client
}

func NewUsers(c *Client) *Users {
	return &Users{client: c}
}

const usersResource = "users"

func (u *Users) Login(ctx context.Context, username, password string) (LoginResult, error) {
	req := request{
		resource: usersResource,
		method:   http.MethodPost,
		path:     pathOf("login"),
		body:     map[string]string{"username": username, "password": password},
	}
	var out LoginResult
	if err := u.client.do(ctx, req, &out); err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" || out.UserID == "" || out.AccountType == "" {
		return LoginResult{}, &Error{Op: req.op(), Kind: ErrDecoding, Status: http.StatusOK, Err: fmt.Errorf("incomplete login response")}
	}
	return out, nil
}

// SignUp registers a new account. A user without an id gets a fresh one.
func (u *Users) SignUp(ctx context.Context, user core.User) (core.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.AccountType == "" {
		user.AccountType = core.AccountFree
	}
	req := request{
		resource: usersResource,
		method:   http.MethodPost,
		path:     pathOf("users"),
		body:     user,
	}
	status, data, err := u.client.send(ctx, req)
	if err != nil {
		return core.User{}, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusConflict:
		return core.User{}, &Error{Op: req.op(), Kind: ErrUsernameTaken, Status: status}
	default:
		return core.User{}, &Error{Op: req.op(), Kind: ErrInvalidResponse, Status: status}
	}

	var out core.User
	if err := json.Unmarshal(data, &out); err != nil {
		return core.User{}, &Error{Op: req.op(), Kind: ErrDecoding, Status: status, Err: err}
	}
	return out, nil
}

func (u *Users) Get(ctx context.Context, id string) (core.User, error) {
	req := request{
		resource: usersResource,
		method:   http.MethodGet,
		path:     pathOf("users", id),
	}
	var out core.User
	if err := u.client.do(ctx, req, &out); err != nil {
		return core.User{}, notFound(err)
	}
	return out, nil
}

// UpdateAccountType switches the account between free and paid. The backend
// answers with a plain JSON string message.
func (u *Users) UpdateAccountType(ctx context.Context, userID, token string, t core.AccountType) (string, error) {
	req := request{
		resource: usersResource,
		method:   http.MethodPut,
		path:     pathOf("users", userID, t.String()),
		token:    token,
		body:     map[string]string{"accountType": t.String()},
	}
	var msg string
	if err := u.client.do(ctx, req, &msg); err != nil {
		return "", err
	}
	return msg, nil
}

// Delete removes the account and returns the backend's status code as is.
func (u *Users) Delete(ctx context.Context, userID, token string) (int, error) {
	status, _, err := u.client.send(ctx, request{
		resource: usersResource,
		method:   http.MethodDelete,
		path:     pathOf("users", userID),
		token:    token,
	})
	return status, err
}

// ValidateReceipt forwards an app store receipt to the validation proxy and
// returns the subscription expiry, which may be nil.
func (u *Users) ValidateReceipt(ctx context.Context, receiptData []byte) (*time.Time, error) {
	req := request{
		resource: usersResource,
		method:   http.MethodPost,
		path:     pathOf("validateReceipt"),
		body:     map[string]string{"receiptData": base64.StdEncoding.EncodeToString(receiptData)},
	}
	status, data, err := u.client.send(ctx, req)
	if err != nil {
		return nil, err
	}

	var body struct {
		Success    bool    `json:"success"`
		ExpiryDate *string `json:"expiry_date"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		if status != http.StatusOK {
			return nil, &Error{Op: req.op(), Kind: ErrInvalidResponse, Status: status}
		}
		return nil, &Error{Op: req.op(), Kind: ErrDecoding, Status: status, Err: err}
	}
	if !body.Success {
		return nil, &Error{Op: req.op(), Kind: ErrReceiptRejected, Status: status}
	}
	if body.ExpiryDate == nil {
		return nil, nil
	}
	ts, err := core.ParseTimestamp(*body.ExpiryDate)
	if err != nil {
		return nil, nil
	}
	return &ts.Time, nil
}
