package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"r2r/internal/core"
	"r2r/internal/gateway"
)

type fakeModels struct {
	replies []string
	err     error
	calls   []fakeCall
}

type fakeCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, fakeCall{model: model, contents: contents, config: config})
	if f.err != nil {
		return nil, f.err
	}
	reply := ""
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: core.RoleModel, Parts: []*genai.Part{{Text: reply}}},
		}},
	}, nil
}

func TestExtractParsesFencedJSON(t *testing.T) {
	fake := &fakeModels{replies: []string{"```json\n[{\"datetime\":\"2025-03-01T10:00:00Z\",\"merchant\":\"Uber\",\"amount\":12.5,\"category\":\"Transport & Fuel\"}]\n```"}}
	c := newClient(fake, Config{})

	got, err := c.Extract(context.Background(), gateway.ExtractRequest{
		Text:  "Uber trip 12.50",
		Image: &gateway.Image{MIMEType: "image/png", Data: []byte{1, 2}},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 1 || got[0].Merchant != "Uber" || !got[0].Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected extraction: %+v", got)
	}

	call := fake.calls[0]
	if call.model != DefaultModel {
		t.Fatalf("expected default model, got %s", call.model)
	}
	if parts := call.contents[0].Parts; len(parts) != 3 || parts[1].InlineData == nil {
		t.Fatalf("expected prompt, image and text parts, got %d", len(parts))
	}
	if call.config.ResponseMIMEType != "application/json" || call.config.ResponseSchema == nil {
		t.Fatalf("expected JSON response schema, got %+v", call.config)
	}
	if enum := call.config.ResponseSchema.Items.Properties["category"].Enum; len(enum) != len(core.Categories) {
		t.Fatalf("expected default categories in schema, got %v", enum)
	}
}

func TestExtractRestrictsCategories(t *testing.T) {
	fake := &fakeModels{replies: []string{"[]"}}
	c := newClient(fake, Config{})

	cats := []string{core.CategoryRent, core.CategoryMisc}
	if _, err := c.Extract(context.Background(), gateway.ExtractRequest{Text: "rent", Categories: cats}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	call := fake.calls[0]
	prompt := call.contents[0].Parts[0].Text
	if !strings.Contains(prompt, core.CategoryRent+", "+core.CategoryMisc) || strings.Contains(prompt, core.CategoryGroceries) {
		t.Fatalf("prompt does not list the requested categories: %q", prompt)
	}
	if enum := call.config.ResponseSchema.Items.Properties["category"].Enum; len(enum) != 2 {
		t.Fatalf("schema enum = %v", enum)
	}
}

func TestExtractMalformedIsParseFailure(t *testing.T) {
	c := newClient(&fakeModels{replies: []string{"sorry, I can't"}}, Config{})
	_, err := c.Extract(context.Background(), gateway.ExtractRequest{Text: "x"})

	var failure *gateway.ExternalServiceFailure
	if !errors.As(err, &failure) || failure.Kind != gateway.KindParse {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func TestInsightsUsesReasoningModel(t *testing.T) {
	fake := &fakeModels{replies: []string{`{"leaks":[{"title":"Coffee","description":"daily","amount":60}]}`}}
	c := newClient(fake, Config{ReasoningModel: "pro"})

	got, err := c.Insights(context.Background(), []core.Transaction{{Merchant: "Cafe", Amount: decimal.NewFromInt(4)}})
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	if len(got.Leaks) != 1 || got.Suggestions == nil {
		t.Fatalf("unexpected insights: %+v", got)
	}
	if fake.calls[0].model != "pro" {
		t.Fatalf("expected reasoning model, got %s", fake.calls[0].model)
	}
}

func TestPredictBillsSendsLastFifty(t *testing.T) {
	fake := &fakeModels{replies: []string{`[{"merchant":"Netflix","estimatedAmount":15.99,"frequency":"monthly","nextExpectedDate":"2025-04-01","confidence":0.9,"isSubscription":true}]`}}
	c := newClient(fake, Config{})

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var txs []core.Transaction
	for i := 0; i < 60; i++ {
		txs = append(txs, core.Transaction{Merchant: "m", Datetime: base.AddDate(0, 0, i), Amount: decimal.NewFromInt(1)})
	}

	got, err := c.PredictBills(context.Background(), txs)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(got) != 1 || got[0].Frequency != core.FrequencyMonthly {
		t.Fatalf("unexpected predictions: %+v", got)
	}
	prompt := fake.calls[0].contents[0].Parts[0].Text
	if strings.Count(prompt, `"m":"m"`) != billHistorySize {
		t.Fatalf("expected %d history records in prompt", billHistorySize)
	}
	if strings.Contains(prompt, "2025-01-10") || !strings.Contains(prompt, "2025-03-01") {
		t.Fatal("expected only the most recent records")
	}
}

func TestGenerateErrorIsClassified(t *testing.T) {
	c := newClient(&fakeModels{err: errors.New("Error 429, Status: RESOURCE_EXHAUSTED")}, Config{})
	_, err := c.PredictBills(context.Background(), []core.Transaction{{}})

	var failure *gateway.ExternalServiceFailure
	if !errors.As(err, &failure) || failure.Kind != gateway.KindQuota {
		t.Fatalf("expected quota failure, got %v", err)
	}
	if !errors.Is(err, core.ErrExternalService) {
		t.Fatal("expected ErrExternalService match")
	}
}

func TestChatKeepsHistory(t *testing.T) {
	fake := &fakeModels{replies: []string{"Hello!", "You spent 10."}}
	c := newClient(fake, Config{})

	s, err := c.StartChat(context.Background(), "2025-01-01: Cafe $4 (Food & Delivery)")
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}
	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, err := s.Send(context.Background(), "how much?")
	if err != nil || reply != "You spent 10." {
		t.Fatalf("unexpected reply %q (err=%v)", reply, err)
	}
	if n := len(fake.calls[1].contents); n != 3 {
		t.Fatalf("expected history replay of 3 turns, got %d", n)
	}
	if !strings.Contains(fake.calls[0].config.SystemInstruction.Parts[0].Text, "Cafe $4") {
		t.Fatal("expected transaction summary in system instruction")
	}
	if h := s.(*chatSession).history; len(h) != 4 || h[3].Role != core.RoleModel {
		t.Fatalf("unexpected history: %+v", h)
	}

	fake.err = errors.New("connection reset")
	if _, err := s.Send(context.Background(), "again"); err == nil {
		t.Fatal("expected error")
	}
	if len(s.(*chatSession).history) != 4 {
		t.Fatal("failed turn must not change history")
	}
}

func TestCleanModelJSON(t *testing.T) {
	cases := map[string]string{
		"[1]":                           "[1]",
		"```json\n[1,2]\n```":           "[1,2]",
		"Here you go: {\"a\":1} thanks": "{\"a\":1}",
		"```\n{\"b\":[1]}\n```":         "{\"b\":[1]}",
	}
	for in, want := range cases {
		if got := cleanModelJSON(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}
