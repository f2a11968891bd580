// Package openai adapts the OpenAI chat completions API to model.ChatModel.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/ramarlina/agx-go/graph/model"
)

const defaultModel = "gpt-4o"

// ChatModel implements model.ChatModel against the OpenAI API, retrying
// transient failures. The zero value is not usable; construct with
// NewChatModel.
type ChatModel struct {
	modelName  string
	client     completionsClient
	maxRetries int
	retryDelay time.Duration
}

// completionsClient is the slice of the SDK the adapter needs, split out so
// tests can fake the wire call.
type completionsClient interface {
	create(ctx context.Context, messages []model.Message) (model.ChatOut, error)
}

// NewChatModel returns an adapter for the given model id. An empty id
// selects defaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		modelName:  modelName,
		client:     &sdkClient{apiKey: apiKey, modelName: modelName},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Chat implements model.ChatModel. Transient failures (timeouts, 5xx, rate
// limits) are retried up to maxRetries with a linearly growing delay; other
// errors return immediately.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.client.create(ctx, messages)
		if err == nil {
			return out, nil
		}
		if !isTransient(err) {
			return model.ChatOut{}, fmt.Errorf("openai %s: %w", m.modelName, err)
		}
		lastErr = err
		if attempt == m.maxRetries {
			break
		}
		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}
	return model.ChatOut{}, fmt.Errorf("openai %s: giving up after %d retries: %w", m.modelName, m.maxRetries, lastErr)
}

// isTransient reports whether the error is worth retrying. The SDK does not
// expose a stable error taxonomy, so this matches on status codes and the
// usual network failure strings.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"429", "500", "502", "503", "timeout", "connection", "temporarily"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) create(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("API key is required")
	}
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: toParams(messages),
	})
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(resp.Choices) == 0 {
		return model.ChatOut{}, errors.New("empty completion")
	}
	return model.ChatOut{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func toParams(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out[i] = openaisdk.SystemMessage(msg.Content)
		case model.RoleAssistant:
			out[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			out[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return out
}
