// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ramarlina/agx-go/graph/model"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// maxOutputTokens bounds each completion. Plan output is the largest thing
// the runtime ever reads back (a full JSON sub-graph), so this is sized for
// that, not for chat.
const maxOutputTokens = 8192

// ChatModel implements model.ChatModel against the Anthropic Messages API.
// The zero value is not usable; construct with NewChatModel.
type ChatModel struct {
	modelName string
	client    messagesClient
}

// messagesClient is the slice of the SDK the adapter needs, split out so
// tests can fake the wire call.
type messagesClient interface {
	create(ctx context.Context, system string, messages []model.Message) (model.ChatOut, error)
}

// NewChatModel returns an adapter for the given model id. An empty id
// selects defaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey, modelName: modelName},
	}
}

// Chat implements model.ChatModel. Anthropic takes the system prompt as a
// separate request field rather than a message role, so it is split out of
// the message list before the call.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	system, rest := splitSystem(messages)
	out, err := m.client.create(ctx, system, rest)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic %s: %w", m.modelName, err)
	}
	return out, nil
}

// splitSystem concatenates system-role messages into one system prompt and
// returns the remaining conversation turns.
func splitSystem(messages []model.Message) (string, []model.Message) {
	var system []string
	var rest []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) create(ctx context.Context, system string, messages []model.Message) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("API key is required")
	}
	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  toParams(messages),
		MaxTokens: maxOutputTokens,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}

	var text []string
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			text = append(text, b.Text)
		}
	}
	return model.ChatOut{
		Text:  strings.Join(text, "\n"),
		Model: string(resp.Model),
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

func toParams(messages []model.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		block := anthropicsdk.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out[i] = anthropicsdk.NewAssistantMessage(block)
		} else {
			out[i] = anthropicsdk.NewUserMessage(block)
		}
	}
	return out
}
