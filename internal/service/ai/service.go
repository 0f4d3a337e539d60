package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

var ErrEmptyReply = errors.New("completion returned an empty reply")

// CompletionError reports a failed completion request.
type CompletionError struct {
	Cause error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed: %v", e.Cause)
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// Service is a stateless prompt-in, text-out wrapper around a chat model.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles a single-turn chain: the prompt as one user message, then chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Complete sends promptText and returns the reply text. Every failure is a
// *CompletionError.
func (s *Service) Complete(ctx context.Context, promptText string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{"prompt": promptText})
	if err != nil {
		log.Printf("[ai] completion failed: %v", err)
		return "", &CompletionError{Cause: err}
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", &CompletionError{Cause: ErrEmptyReply}
	}

	log.Printf("[ai] generated response, length=%d", len(response.Content))
	return response.Content, nil
}
