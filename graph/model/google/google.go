// Package google adapts the Google Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/ramarlina/agx-go/graph/model"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel against the Gemini API. The zero
// value is not usable; construct with NewChatModel.
type ChatModel struct {
	modelName string
	client    generateClient
}

// generateClient is the slice of the SDK the adapter needs, split out so
// tests can fake the wire call.
type generateClient interface {
	generate(ctx context.Context, system string, messages []model.Message) (model.ChatOut, error)
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

// Chat implements model.ChatModel. Gemini takes the system prompt as a
// model-level system instruction, so it is split out of the message list.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	var system []string
	var rest []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	out, err := m.client.generate(ctx, strings.Join(system, "\n\n"), rest)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("gemini %s: %w", m.modelName, err)
	}
	return out, nil
}

// SafetyError reports a completion blocked by Gemini's safety filters. The
// category names which filter fired.
type SafetyError struct {
	Category string
}

func (e *SafetyError) Error() string {
	return "blocked by safety filter: " + e.Category
}

type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) generate(ctx context.Context, system string, messages []model.Message) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	gm := client.GenerativeModel(c.modelName)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}

	resp, err := gm.GenerateContent(ctx, parts...)
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return model.ChatOut{}, &SafetyError{Category: resp.PromptFeedback.BlockReason.String()}
		}
		return model.ChatOut{}, errors.New("empty response")
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return model.ChatOut{}, &SafetyError{Category: cand.FinishReason.String()}
	}

	var text []string
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text = append(text, string(t))
			}
		}
	}

	out := model.ChatOut{Text: strings.Join(text, "\n"), Model: c.modelName}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}
