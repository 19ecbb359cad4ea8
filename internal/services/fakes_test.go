package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"r2r/internal/core"
	"r2r/internal/gateway"
	"r2r/internal/store/memory"
)

type fakeGateway struct {
	mu sync.Mutex

	text       []gateway.Extracted
	image      []gateway.Extracted
	extractErr error
	requests   []gateway.ExtractRequest
	delay      time.Duration

	insights    core.Insights
	insightsErr error

	bills     []core.BillPrediction
	billsErr  error
	billCalls int

	chatErr  error
	reply    string
	replyErr error
	seed     string
}

func (g *fakeGateway) Extract(_ context.Context, req gateway.ExtractRequest) ([]gateway.Extracted, error) {
	time.Sleep(g.delay)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.extractErr != nil {
		return nil, g.extractErr
	}
	if req.Image != nil {
		return g.image, nil
	}
	return g.text, nil
}

func (g *fakeGateway) Insights(context.Context, []core.Transaction) (core.Insights, error) {
	return g.insights, g.insightsErr
}

func (g *fakeGateway) PredictBills(context.Context, []core.Transaction) ([]core.BillPrediction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.billCalls++
	return g.bills, g.billsErr
}

func (g *fakeGateway) StartChat(_ context.Context, summary string) (gateway.ChatSession, error) {
	if g.chatErr != nil {
		return nil, g.chatErr
	}
	g.seed = summary
	return &fakeSession{g: g}, nil
}

type fakeSession struct{ g *fakeGateway }

func (s *fakeSession) Send(context.Context, string) (string, error) {
	return s.g.reply, s.g.replyErr
}


type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *fakePublisher) PublishIngestJob(_ context.Context, jobID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, jobID)
	return nil
}

type fakeTokens struct{ err error }

func (f fakeTokens) Issue(userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-" + userID, nil
}

var errModelDown = errors.New("model down")

func newTestGateway(g *fakeGateway) *gateway.Defaulting {
	return gateway.NewDefaulting(g, time.Second, nil)
}

func seedUser(t *testing.T, st *memory.Store, id, householdID string) core.User {
	t.Helper()
	u := core.User{ID: id, Name: id, Email: id + "@example.com", HouseholdID: householdID, StreakCount: 1}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func seedTx(t *testing.T, st *memory.Store, tx core.Transaction) core.Transaction {
	t.Helper()
	if tx.Datetime.IsZero() {
		tx.Datetime = time.Now().UTC().Add(-time.Hour)
	}
	if tx.Category == "" {
		tx.Category = core.CategoryMisc
	}
	if tx.Currency == "" {
		tx.Currency = core.DefaultCurrency
	}
	if tx.Merchant == "" {
		tx.Merchant = "Merchant " + tx.ID
	}
	if err := st.AppendTransactions(context.Background(), []core.Transaction{tx}); err != nil {
		t.Fatalf("seed tx %s: %v", tx.ID, err)
	}
	return tx
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
