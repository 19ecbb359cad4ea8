package gateway

import (
	"context"
	"log/slog"
	"time"

	"r2r/internal/core"
)

// Defaulting wraps a Gateway so that any failure becomes an empty result.
// Callers cannot tell "nothing found" from "request failed"; the failure
// is logged instead.
type Defaulting struct {
	next    Gateway
	timeout time.Duration
	logger  *slog.Logger
}

func NewDefaulting(next Gateway, timeout time.Duration, logger *slog.Logger) *Defaulting {
	if logger == nil {
		logger = slog.Default()
	}
	return &Defaulting{next: next, timeout: timeout, logger: logger}
}

func (d *Defaulting) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d *Defaulting) warn(ctx context.Context, op string, err error) {
	d.logger.WarnContext(ctx, "Gateway call failed, using empty result",
		"component", "gateway", "operation", op, "error", err)
}

// Extract returns the extracted records, or none on failure.
func (d *Defaulting) Extract(ctx context.Context, req ExtractRequest) []Extracted {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	out, err := d.next.Extract(ctx, req)
	if err != nil {
		d.warn(ctx, OpExtract, err)
		return []Extracted{}
	}
	if out == nil {
		return []Extracted{}
	}
	return out
}

// Insights returns leaks and suggestions, or empty lists on failure.
// An empty transaction set never reaches the model.
func (d *Defaulting) Insights(ctx context.Context, txs []core.Transaction) core.Insights {
	if len(txs) == 0 {
		return core.EmptyInsights()
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	out, err := d.next.Insights(ctx, txs)
	if err != nil {
		d.warn(ctx, OpInsights, err)
		return core.EmptyInsights()
	}
	return out.Normalize()
}

// PredictBills returns usable predictions, or none on failure.
func (d *Defaulting) PredictBills(ctx context.Context, txs []core.Transaction) []core.BillPrediction {
	if len(txs) == 0 {
		return []core.BillPrediction{}
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	out, err := d.next.PredictBills(ctx, txs)
	if err != nil {
		d.warn(ctx, OpPredictBills, err)
		return []core.BillPrediction{}
	}
	kept := make([]core.BillPrediction, 0, len(out))
	for _, p := range out {
		if p.Clamp() {
			kept = append(kept, p)
		}
	}
	return kept
}

// StartChat passes through: a chat cannot be defaulted, callers surface
// a connectivity message instead.
func (d *Defaulting) StartChat(ctx context.Context, summary string) (ChatSession, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	s, err := d.next.StartChat(ctx, summary)
	if err != nil {
		return nil, Fail(OpChat, err)
	}
	return s, nil
}

// Send forwards a chat message under the gateway timeout.
func (d *Defaulting) Send(ctx context.Context, s ChatSession, message string) (string, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	reply, err := s.Send(ctx, message)
	if err != nil {
		return "", Fail(OpChat, err)
	}
	return reply, nil
}
