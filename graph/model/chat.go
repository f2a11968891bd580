// Package model abstracts LLM providers behind a single Chat call. It is
// consumed by graph/agent's default AgentRunner, which only ever sends a
// prompt and reads text back; provider adapters live in model/anthropic,
// model/openai, model/google.
package model

import "context"

// ChatModel is one LLM provider.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is one turn in a conversation.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage is the provider-reported token accounting for one call. graph/agent
// surfaces it to the execution loop for per-node cost attribution; a zero
// Usage means the provider did not report counts.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOut is what a Chat call returns. Model is the concrete model id the
// provider answered with, which may differ from the id requested (providers
// resolve aliases like "gpt-4o" to a dated snapshot).
type ChatOut struct {
	Text  string
	Model string
	Usage Usage
}
