// Package gemini implements the insight gateway on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"r2r/internal/core"
	"r2r/internal/gateway"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultReasoningModel = "gemini-2.5-pro"

	billHistorySize = 50
)

var errEmptyResponse = errors.New("empty response from model")

// generator is the subset of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey         string
	Model          string // extraction and chat
	ReasoningModel string // insights and bill prediction
}

type Client struct {
	models         generator
	model          string
	reasoningModel string
}

var _ gateway.Gateway = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client.Models, cfg), nil
}

func newClient(g generator, cfg Config) *Client {
	c := &Client{models: g, model: cfg.Model, reasoningModel: cfg.ReasoningModel}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.reasoningModel == "" {
		c.reasoningModel = DefaultReasoningModel
	}
	return c
}

func (c *Client) generate(ctx context.Context, op, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", gateway.Fail(op, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", gateway.ParseFailure(op, errEmptyResponse)
	}
	return text, nil
}

func userText(text string) []*genai.Content {
	return []*genai.Content{{Role: core.RoleUser, Parts: []*genai.Part{{Text: text}}}}
}

func (c *Client) Extract(ctx context.Context, req gateway.ExtractRequest) ([]gateway.Extracted, error) {
	categories := req.Categories
	if len(categories) == 0 {
		categories = core.Categories
	}
	parts := []*genai.Part{{Text: extractPrompt(categories)}}
	if req.Image != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data}})
	}
	if strings.TrimSpace(req.Text) != "" {
		parts = append(parts, &genai.Part{Text: req.Text})
	}

	text, err := c.generate(ctx, gateway.OpExtract, c.model,
		[]*genai.Content{{Role: core.RoleUser, Parts: parts}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   extractSchema(categories),
		})
	if err != nil {
		return nil, err
	}

	var out []gateway.Extracted
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &out); err != nil {
		return nil, gateway.ParseFailure(gateway.OpExtract, err)
	}
	return out, nil
}

type insightRecord struct {
	Date     string `json:"date"`
	Merchant string `json:"merchant"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

func (c *Client) Insights(ctx context.Context, txs []core.Transaction) (core.Insights, error) {
	records := make([]insightRecord, 0, len(txs))
	for _, t := range txs {
		records = append(records, insightRecord{
			Date:     t.Datetime.Format(core.DayLayout),
			Merchant: t.Merchant,
			Amount:   t.Amount.StringFixed(core.AmountPlaces),
			Category: t.Category,
		})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return core.Insights{}, fmt.Errorf("encode insight history: %w", err)
	}

	text, err := c.generate(ctx, gateway.OpInsights, c.reasoningModel,
		userText(fmt.Sprintf(insightsPrompt, payload)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   insightsSchema,
		})
	if err != nil {
		return core.Insights{}, err
	}

	var out core.Insights
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &out); err != nil {
		return core.Insights{}, gateway.ParseFailure(gateway.OpInsights, err)
	}
	return out.Normalize(), nil
}

type billRecord struct {
	D string `json:"d"`
	M string `json:"m"`
	A string `json:"a"`
}

func (c *Client) PredictBills(ctx context.Context, txs []core.Transaction) ([]core.BillPrediction, error) {
	if len(txs) > billHistorySize {
		txs = txs[len(txs)-billHistorySize:]
	}
	history := make([]billRecord, 0, len(txs))
	for _, t := range txs {
		history = append(history, billRecord{D: t.Datetime.Format(core.DayLayout), M: t.Merchant, A: t.Amount.StringFixed(core.AmountPlaces)})
	}
	payload, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode bill history: %w", err)
	}

	text, err := c.generate(ctx, gateway.OpPredictBills, c.reasoningModel,
		userText(fmt.Sprintf(billsPrompt, payload)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   billsSchema,
		})
	if err != nil {
		return nil, err
	}

	var out []core.BillPrediction
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &out); err != nil {
		return nil, gateway.ParseFailure(gateway.OpPredictBills, err)
	}
	return out, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON array or object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	if end := strings.LastIndex(s, closer); end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
