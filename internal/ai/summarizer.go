package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/logger"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Summarizer produces short summaries of items and documents through an
// OpenAI-compatible API. A disabled summarizer is a valid value; every call
// on it returns an external-service error rather than panicking.
type Summarizer struct {
	client *openai.Client
	cfg    config.AIConfig
	log    *zap.Logger
}

func NewSummarizer(cfg config.AIConfig) *Summarizer {
	s := &Summarizer{
		cfg: cfg,
		log: logger.New("ai"),
	}
	if cfg.Enabled {
		s.client = openai.NewClient(cfg.APIKey)
	}
	return s
}

// Enabled reports whether summarization is configured.
func (s *Summarizer) Enabled() bool {
	return s.client != nil
}

const (
	itemPrompt = "Summarize this task in two or three sentences for a project status report. " +
		"Mention the goal and current state, skip formalities."
	docPrompt = "Summarize this document in at most five sentences. " +
		"Keep concrete decisions and action points, drop boilerplate."
)

// SummarizeItem produces a summary of an item from its title, description
// and comments.
func (s *Summarizer) SummarizeItem(ctx context.Context, item *domain.Item) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", item.Name)
	if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}
	for _, c := range item.Comments {
		fmt.Fprintf(&b, "Comment: %s\n", c.Comment)
	}
	return s.complete(ctx, itemPrompt, b.String())
}

// SummarizeDoc produces a summary of a collaborative document's content.
func (s *Summarizer) SummarizeDoc(ctx context.Context, doc *domain.CollabDoc) (string, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return "", apperrors.ValidationError("EMPTY_DOCUMENT", "document has no content to summarize")
	}
	return s.complete(ctx, docPrompt, doc.Content)
}

func (s *Summarizer) complete(ctx context.Context, system, input string) (string, error) {
	if s.client == nil {
		return "", apperrors.ExternalServiceError("openai", "summarize",
			fmt.Errorf("AI summarization is disabled"))
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		s.log.Error("completion request failed", zap.Error(err))
		return "", apperrors.ExternalServiceError("openai", "summarize", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.ExternalServiceError("openai", "summarize",
			fmt.Errorf("empty completion response"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
