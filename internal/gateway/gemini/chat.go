package gemini

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"r2r/internal/core"
	"r2r/internal/gateway"
)

// chatSession replays its history on every turn under a fixed system
// instruction.
type chatSession struct {
	mu      sync.Mutex
	client  *Client
	config  *genai.GenerateContentConfig
	history []*genai.Content
}

func (c *Client) StartChat(_ context.Context, summary string) (gateway.ChatSession, error) {
	return &chatSession{
		client: c,
		config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: fmt.Sprintf(chatInstruction, summary)}},
			},
		},
	}, nil
}

// Send appends the user turn and the model reply. A failed turn leaves the
// history unchanged.
func (s *chatSession) Send(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := &genai.Content{Role: core.RoleUser, Parts: []*genai.Part{{Text: message}}}
	contents := append(append([]*genai.Content(nil), s.history...), turn)

	resp, err := s.client.models.GenerateContent(ctx, s.client.model, contents, s.config)
	if err != nil {
		return "", gateway.Fail(gateway.OpChat, err)
	}
	reply := resp.Text()

	s.history = append(contents, &genai.Content{Role: core.RoleModel, Parts: []*genai.Part{{Text: reply}}})
	return reply, nil
}
