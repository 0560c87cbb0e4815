package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultModel = "claude-3-5-sonnet-20241022"
const defaultMaxTokens = 1024

// MentionTag at the start of a chat message routes it to the bridge.
const MentionTag = "@ai"

// Message is one turn of conversational context handed to the completer.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Completer is the external LLM collaborator. The engine only needs a reply
// for a context window; provider details stay behind this interface.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// AnthropicCompleter implements Completer with the official Anthropic SDK.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

func NewAnthropicCompleter(apiKey, modelName string) (*AnthropicCompleter, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errors.New("anthropic completer requires an API key")
	}
	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultModel
	}
	return &AnthropicCompleter{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		model:  model,
	}, nil
}

func (c *AnthropicCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Trigger decides whether a chat message should be forwarded to the bridge
// and returns the prompt with the mention stripped. Messages inside a
// dedicated AI pair group trigger regardless; the router owns that check
// since it owns group membership.
type Trigger struct {
	// Keyword, when non-empty, triggers anywhere in the body.
	Keyword string
}

func (t *Trigger) Match(body string) (prompt string, ok bool) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, MentionTag) {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, MentionTag)), true
	}
	if t == nil {
		return "", false
	}
	if t.Keyword != "" && strings.Contains(body, t.Keyword) {
		return trimmed, true
	}
	return "", false
}
