package gemini

import (
	"strings"

	"google.golang.org/genai"

	"r2r/internal/core"
)

func extractPrompt(categories []string) string {
	return "TASK: High-precision financial extraction. Categorize: " +
		strings.Join(categories, ", ") +
		". Detect if transaction looks like a Business Expense. " +
		"Use ISO 8601 for datetime. Return JSON array."
}

const insightsPrompt = `Analyze spending: %s. Identify 'leaks' (recurring wasteful spending with an estimated monthly cost) ` +
	`and 'suggestions' (actionable recommendations with an estimated monthly saving). Return JSON.`

const billsPrompt = `Identify recurring bills or subscriptions from this history: %s. Return JSON array of predictions.`

const chatInstruction = `You are a financial advisor for R2R. Use the user's recent transactions to answer questions.
Summary: %s
Be concise, encouraging, and data-driven.`

func extractSchema(categories []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"datetime":   {Type: genai.TypeString},
				"merchant":   {Type: genai.TypeString},
				"amount":     {Type: genai.TypeNumber},
				"currency":   {Type: genai.TypeString},
				"category":   {Type: genai.TypeString, Enum: categories},
				"isBusiness": {Type: genai.TypeBoolean},
			},
			Required: []string{"datetime", "merchant", "amount", "category"},
		},
	}
}

var insightsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"leaks": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":       {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"amount":      {Type: genai.TypeNumber},
				},
			},
		},
		"suggestions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"action":                 {Type: genai.TypeString},
					"rationale":              {Type: genai.TypeString},
					"estimatedMonthlySaving": {Type: genai.TypeNumber},
				},
			},
		},
	},
	Required: []string{"leaks", "suggestions"},
}

var billsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"merchant":        {Type: genai.TypeString},
			"estimatedAmount": {Type: genai.TypeNumber},
			"frequency": {
				Type: genai.TypeString,
				Enum: []string{string(core.FrequencyWeekly), string(core.FrequencyMonthly), string(core.FrequencyAnnual)},
			},
			"nextExpectedDate": {Type: genai.TypeString},
			"confidence":       {Type: genai.TypeNumber},
			"isSubscription":   {Type: genai.TypeBoolean},
		},
	},
}
