package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mediaintel/internal/domain"
	"mediaintel/internal/ports"
)

const chatSystemPrompt = "You answer questions about a collection of news articles. " +
	"Base your answer only on the articles provided. Be concise."

const chatContextLimit = 30

// ChatService is a thin passthrough: it reads recent stored articles and
// forwards them with the user's question to the text-generation provider.
type ChatService struct {
	store  ports.ArticleStore
	llm    ports.ChatCompleter
	logger *slog.Logger
}

// NewChatService wires the store and completion client.
func NewChatService(store ports.ArticleStore, llm ports.ChatCompleter, logger *slog.Logger) *ChatService {
	return &ChatService{store: store, llm: llm, logger: logger}
}

// Ask returns the provider's reply plus the articles it was shown.
func (s *ChatService) Ask(ctx context.Context, message string) (string, []domain.Article, error) {
	articles, err := s.store.Query(ctx, domain.ArticleFilter{Limit: chatContextLimit})
	if err != nil {
		return "", nil, fmt.Errorf("load articles for chat: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Articles:\n")
	for _, article := range articles {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", article.Category, article.Title, article.Summary)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s", message)

	reply, err := s.llm.Complete(ctx, chatSystemPrompt, sb.String())
	if err != nil {
		return "", nil, fmt.Errorf("chat completion: %w", err)
	}

	return reply, articles, nil
}
