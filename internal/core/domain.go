package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	AccountFree AccountType = "free"
	AccountPaid AccountType = "paid"
)

// UnknownName is shown for ids that do not resolve against a lookup table.
const UnknownName = "Unknown"

type (
	AccountType string

	Client struct {
		ID              string  `json:"id"`
		Name            string  `json:"name"`
		EmailAddress    *string `json:"emailAddress,omitempty"`
		OfficePhone     *string `json:"officePhone,omitempty"`
		MobilePhone     *string `json:"mobilePhone,omitempty"`
		AddressLine1    *string `json:"addressLine1,omitempty"`
		AddressLine2    *string `json:"addressLine2,omitempty"`
		City            *string `json:"city,omitempty"`
		StateOrProvince *string `json:"stateOrProvince,omitempty"`
		PostalCode      *string `json:"postalCode,omitempty"`
		Country         *string `json:"country,omitempty"`
	}

	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Icon string `json:"icon"` // URL or glyph reference
	}

	Vehicle struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	Receipt struct {
		ID           string    `json:"id"`
		Category     string    `json:"category"` // category id
		Date         Timestamp `json:"date"`
		InitialTotal float64   `json:"initalTotal"` // backend spelling
		Tax          float64   `json:"tax"`
		Tip          float64   `json:"tip"`
		ClientID     string    `json:"clientId"`
		PaymentMode  string    `json:"paymentMode"`
		Description  string    `json:"description"`
		Status       *string   `json:"status,omitempty"`
	}

	Job struct {
		ID       string    `json:"id"`
		Start    Timestamp `json:"start"`
		End      Timestamp `json:"end"` // zero while the job is open
		Rate     float64   `json:"rate"`
		Income   float64   `json:"income"`
		Project  string    `json:"project"`
		ClientID string    `json:"clientId"`
		TaskID   string    `json:"taskId"`
		Notes    string    `json:"notes"`
		UserID   string    `json:"userId"`
	}

	// TripLog start/end are odometer readings.
	TripLog struct {
		ID          string    `json:"id"`
		Date        Timestamp `json:"date"`
		Expense     float64   `json:"expense"`
		Start       float64   `json:"start"`
		End         float64   `json:"end"`
		Rate        float64   `json:"rate"`
		Total       float64   `json:"total"`
		Vehicle     string    `json:"vehicle"` // vehicle id
		Origin      string    `json:"origin"`
		Destination string    `json:"destination"`
		ClientID    string    `json:"clientId"`
		Notes       string    `json:"notes"`
	}

	User struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		AccountType AccountType `json:"accountType"`
		Username    string      `json:"username"`
		Password    string      `json:"password"`
		CompanyName string      `json:"companyName"`
	}
)

var (
	ErrEmptyID         = errors.New("empty id")
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyClient     = errors.New("empty client id")
	ErrEmptyCategory   = errors.New("empty category id")
	ErrEmptyVehicle    = errors.New("empty vehicle id")
	ErrEmptyUsername   = errors.New("empty username")
	ErrMissingDate     = errors.New("missing date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrEndBeforeStart  = errors.New("end before start")
	ErrInvalidAccount  = errors.New("invalid account type")
	ErrDescriptionLong = errors.New("description too long (max 500 characters)")
)

// ParseAccountType accepts "free" or "paid".
func ParseAccountType(s string) (AccountType, error) {
	switch AccountType(strings.ToLower(strings.TrimSpace(s))) {
	case AccountFree:
		return AccountFree, nil
	case AccountPaid:
		return AccountPaid, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAccount, s)
}

func (a AccountType) String() string { return string(a) }

// ShowsAds reports whether the account sees ads. Anything but paid does.
func (a AccountType) ShowsAds() bool { return a != AccountPaid }

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (v Vehicle) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// Total is initialTotal + tax + tip. It is never stored.
func (r Receipt) Total() decimal.Decimal {
	return Sum(r.InitialTotal, r.Tax, r.Tip)
}

func (r Receipt) Validate() error {
	if r.Date.IsZero() {
		return ErrMissingDate
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(r.ClientID) == "" {
		return ErrEmptyClient
	}
	if r.InitialTotal < 0 || r.Tax < 0 || r.Tip < 0 {
		return ErrNegativeAmount
	}
	if len(r.Description) > 500 {
		return ErrDescriptionLong
	}
	return nil
}

// Duration is zero while the job is still open.
func (j Job) Duration() decimal.Decimal {
	if j.End.IsZero() {
		return decimal.Zero
	}
	hours := j.End.Sub(j.Start.Time).Hours()
	return decimal.NewFromFloat(hours).Round(2)
}

func (j Job) Validate() error {
	if j.Start.IsZero() {
		return ErrMissingDate
	}
	if !j.End.IsZero() && j.End.Before(j.Start.Time) {
		return ErrEndBeforeStart
	}
	if strings.TrimSpace(j.ClientID) == "" {
		return ErrEmptyClient
	}
	if j.Rate < 0 || j.Income < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Distance is the odometer delta.
func (t TripLog) Distance() decimal.Decimal {
	return Amount(t.End).Sub(Amount(t.Start))
}

func (t TripLog) Validate() error {
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if t.End < t.Start {
		return ErrEndBeforeStart
	}
	if strings.TrimSpace(t.Vehicle) == "" {
		return ErrEmptyVehicle
	}
	if strings.TrimSpace(t.ClientID) == "" {
		return ErrEmptyClient
	}
	if t.Expense < 0 || t.Rate < 0 || t.Total < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyUsername
	}
	if strings.TrimSpace(u.Name) == "" {
		return ErrEmptyName
	}
	if _, err := ParseAccountType(string(u.AccountType)); err != nil {
		return err
	}
	return nil
}

// NameIndex maps ids to display names.
type NameIndex map[string]string

// Resolve returns the name for id, or UnknownName.
func (n NameIndex) Resolve(id string) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return UnknownName
}

func ClientNames(clients []Client) NameIndex {
	idx := make(NameIndex, len(clients))
	for _, c := range clients {
		idx[c.ID] = c.Name
	}
	return idx
}

func CategoryNames(categories []Category) NameIndex {
	idx := make(NameIndex, len(categories))
	for _, c := range categories {
		idx[c.ID] = c.Name
	}
	return idx
}

func VehicleNames(vehicles []Vehicle) NameIndex {
	idx := make(NameIndex, len(vehicles))
	for _, v := range vehicles {
		idx[v.ID] = v.Name
	}
	return idx
}
