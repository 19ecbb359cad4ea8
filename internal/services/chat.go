package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"r2r/internal/cache"
	"r2r/internal/core"
	"r2r/internal/gateway"
)

const (
	chatContextSize  = 30
	chatSessionLimit = 500

	ChatGreeting       = "Hi! I'm your R2R Assistant. I've analyzed your recent spending. Ask me anything, like 'How much did I spend on groceries this month?' or 'Can I afford a new gadget?'"
	ChatEmptyReply     = "I couldn't process that. Try again?"
	ChatConnectionLost = "Connection lost. Please refresh."
)

// ChatModel opens and drives advisor conversations.
type ChatModel interface {
	StartChat(ctx context.Context, summary string) (gateway.ChatSession, error)
	Send(ctx context.Context, s gateway.ChatSession, message string) (string, error)
}

type ChatConversation struct {
	ID       string             `json:"id"`
	Messages []core.ChatMessage `json:"messages"`
}

type chatEntry struct {
	mu         sync.Mutex
	userID     string
	session    gateway.ChatSession
	transcript []core.ChatMessage
}

type ChatService struct {
	txs      *TransactionService
	model    ChatModel
	sessions *cache.LRUCache[*chatEntry]
}

// NewChatService keeps idle conversations for ttl.
func NewChatService(txs *TransactionService, model ChatModel, ttl time.Duration) *ChatService {
	return &ChatService{
		txs:      txs,
		model:    model,
		sessions: cache.NewLRUCache[*chatEntry](chatSessionLimit, ttl),
	}
}

// Sessions exposes the session cache for periodic cleanup.
func (s *ChatService) Sessions() cache.Cleaner {
	return s.sessions
}

// Start seeds a conversation with the user's last 30 visible transactions.
func (s *ChatService) Start(ctx context.Context, userID string) (ChatConversation, error) {
	txs, err := s.txs.List(ctx, userID)
	if err != nil {
		return ChatConversation{}, err
	}

	session, err := s.model.StartChat(ctx, ChatContext(tail(txs, chatContextSize)))
	if err != nil {
		return ChatConversation{}, fmt.Errorf("start chat: %w", err)
	}

	entry := &chatEntry{
		userID:     userID,
		session:    session,
		transcript: []core.ChatMessage{{Role: core.RoleModel, Text: ChatGreeting}},
	}
	id := uuid.NewString()
	s.sessions.Set(id, entry)

	slog.InfoContext(ctx, "Chat session started", "user_id", userID, "session_id", id)
	return ChatConversation{ID: id, Messages: slices.Clone(entry.transcript)}, nil
}

// Send posts a message and returns the advisor's reply. Model failures are
// answered with a fixed message and the conversation stays usable.
func (s *ChatService) Send(ctx context.Context, userID, sessionID, message string) (core.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return core.ChatMessage{}, &core.ValidationError{Field: "message", Err: errors.New("message is required")}
	}
	entry, err := s.entry(userID, sessionID)
	if err != nil {
		return core.ChatMessage{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	text, err := s.model.Send(ctx, entry.session, message)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "Chat reply failed", "user_id", userID, "session_id", sessionID, "error", err)
		text = ChatConnectionLost
	case strings.TrimSpace(text) == "":
		text = ChatEmptyReply
	}

	reply := core.ChatMessage{Role: core.RoleModel, Text: text}
	entry.transcript = append(entry.transcript, core.ChatMessage{Role: core.RoleUser, Text: message}, reply)
	s.sessions.Set(sessionID, entry)
	return reply, nil
}

// Conversation returns the transcript shown to the user.
func (s *ChatService) Conversation(_ context.Context, userID, sessionID string) (ChatConversation, error) {
	entry, err := s.entry(userID, sessionID)
	if err != nil {
		return ChatConversation{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return ChatConversation{ID: sessionID, Messages: slices.Clone(entry.transcript)}, nil
}

func (s *ChatService) entry(userID, sessionID string) (*chatEntry, error) {
	entry, ok := s.sessions.Get(sessionID)
	if !ok || entry.userID != userID {
		return nil, fmt.Errorf("chat session %s: %w", sessionID, core.ErrNotFound)
	}
	return entry, nil
}

// ChatContext renders transactions as "<datetime>: <merchant> $<amount> (<category>)" lines.
func ChatContext(txs []core.Transaction) string {
	var b strings.Builder
	for i, t := range txs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s $%s (%s)", t.Datetime.UTC().Format(time.RFC3339), t.Merchant, t.Amount.String(), t.Category)
	}
	return b.String()
}
