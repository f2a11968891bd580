package model

import (
	"context"
	"sync"
)

// MockChatModel scripts ChatModel responses for tests. Each Chat call
// returns the next entry in Script (repeating the last once exhausted), or
// Err if set. Every call is recorded in Calls either way, except a call
// whose context is already done, which returns ctx.Err() unrecorded.
type MockChatModel struct {
	Script []ChatOut
	Err    error

	mu    sync.Mutex
	next  int
	Calls [][]Message
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	m.Calls = append(m.Calls, recorded)

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Script) == 0 {
		return ChatOut{}, nil
	}
	i := m.next
	if i >= len(m.Script) {
		i = len(m.Script) - 1
	} else {
		m.next++
	}
	return m.Script[i], nil
}

// CallCount returns how many times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastPrompt returns the user-role content of the most recent call, or ""
// if nothing has been recorded yet.
func (m *MockChatModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return ""
	}
	for _, msg := range m.Calls[len(m.Calls)-1] {
		if msg.Role == RoleUser {
			return msg.Content
		}
	}
	return ""
}

// Reset clears the call history and rewinds the script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}
