// Package gateway is the boundary to the external insight and prediction
// model. Implementations report failures as *ExternalServiceFailure;
// Defaulting collapses those failures to empty results for the services.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"r2r/internal/core"
)

type Image struct {
	MIMEType string
	Data     []byte
}

// ExtractRequest is one model call: text, an image, or both. Categories is
// the set the model must pick from; empty means core.Categories.
type ExtractRequest struct {
	Text       string
	Image      *Image
	SourceType core.SourceType
	Categories []string
}

// Extracted is a transaction-shaped record as returned by the model,
// before normalization.
type Extracted struct {
	Datetime   string          `json:"datetime"`
	Merchant   string          `json:"merchant"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Category   string          `json:"category"`
	IsBusiness bool            `json:"isBusiness"`
}

type Gateway interface {
	Extract(ctx context.Context, req ExtractRequest) ([]Extracted, error)
	Insights(ctx context.Context, txs []core.Transaction) (core.Insights, error)
	PredictBills(ctx context.Context, txs []core.Transaction) ([]core.BillPrediction, error)
	StartChat(ctx context.Context, summary string) (ChatSession, error)
}

// ChatSession is a stateful conversation seeded at creation.
type ChatSession interface {
	Send(ctx context.Context, message string) (string, error)
}

// Unavailable is used when no model is configured; every call fails.
type Unavailable struct{}

func (Unavailable) Extract(context.Context, ExtractRequest) ([]Extracted, error) {
	return nil, unavailable(OpExtract)
}

func (Unavailable) Insights(context.Context, []core.Transaction) (core.Insights, error) {
	return core.Insights{}, unavailable(OpInsights)
}

func (Unavailable) PredictBills(context.Context, []core.Transaction) ([]core.BillPrediction, error) {
	return nil, unavailable(OpPredictBills)
}

func (Unavailable) StartChat(context.Context, string) (ChatSession, error) {
	return nil, unavailable(OpChat)
}

func unavailable(op string) error {
	return &ExternalServiceFailure{Op: op, Kind: KindUnavailable, Err: errNotConfigured}
}
