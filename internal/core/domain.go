package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceReceiptImage SourceType = "receipt_image"
	SourceEmail        SourceType = "email"
	SourceSMS          SourceType = "sms"
	SourceManual       SourceType = "manual"
)

const (
	CategoryFood          = "Food & Delivery"
	CategoryGroceries     = "Groceries"
	CategoryTransport     = "Transport & Fuel"
	CategoryShopping      = "Shopping"
	CategorySubscriptions = "Subscriptions"
	CategoryBills         = "Bills & Utilities"
	CategoryRent          = "Rent"
	CategoryMisc          = "Misc"
)

// DefaultCurrency is applied to extracted records that carry no currency.
const DefaultCurrency = "USD"

// Categories is the fixed category set, in display order.
var Categories = []string{
	CategoryFood,
	CategoryGroceries,
	CategoryTransport,
	CategoryShopping,
	CategorySubscriptions,
	CategoryBills,
	CategoryRent,
	CategoryMisc,
}

type (
	SourceType string

	// Transaction is a single spending record. Only IsBusiness and Category
	// change after ingest.
	Transaction struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		HouseholdID string          `json:"householdId,omitempty"` // membership at ingest time
		Datetime    time.Time       `json:"datetime"`
		Merchant    string          `json:"merchant"`
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
		Category    string          `json:"category"`
		SourceType  SourceType      `json:"sourceType"`
		RawText     string          `json:"rawText,omitempty"`
		IsBusiness  bool            `json:"isBusiness"`
	}

	ChatMessage struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

func ParseSourceType(s string) (SourceType, error) {
	switch st := SourceType(strings.ToLower(strings.TrimSpace(s))); st {
	case SourceReceiptImage, SourceEmail, SourceSMS, SourceManual:
		return st, nil
	case "":
		return SourceManual, nil
	default:
		return "", &ValidationError{Field: "sourceType", Err: ErrInvalidSourceType}
	}
}

// IsCategory reports whether c is one of the fixed categories (exact match).
func IsCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// NormalizeCategory maps a free-form category onto the fixed set,
// falling back to Misc.
func NormalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	for _, known := range Categories {
		if strings.EqualFold(c, known) {
			return known
		}
	}
	return CategoryMisc
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return &ValidationError{Field: "userId", Err: ErrEmptyUser}
	}
	if t.Datetime.IsZero() {
		return &ValidationError{Field: "datetime", Err: ErrInvalidDate}
	}
	if strings.TrimSpace(t.Merchant) == "" {
		return &ValidationError{Field: "merchant", Err: ErrEmptyMerchant}
	}
	if len(t.Merchant) > 200 {
		return &ValidationError{Field: "merchant", Err: errors.New("merchant too long (max 200 characters)")}
	}
	if t.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	if !IsCategory(t.Category) {
		return &ValidationError{Field: "category", Err: ErrUnknownCategory}
	}
	return nil
}

// VisibleTo reports whether the transaction belongs to userID or is tagged
// with the given household.
func (t Transaction) VisibleTo(userID, householdID string) bool {
	if t.UserID == userID {
		return true
	}
	return householdID != "" && t.HouseholdID == householdID
}
