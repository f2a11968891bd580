package model

import (
	"context"
	"errors"
	"testing"
)

// staticModel is a minimal ChatModel used to exercise the interface shape.
type staticModel struct {
	out ChatOut
	err error
}

func (s *staticModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}
	return s.out, s.err
}

func TestChatModelInterface(t *testing.T) {
	var m ChatModel = &staticModel{out: ChatOut{Text: "hello"}}
	out, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "hello" {
		t.Fatalf("unexpected text: %q", out.Text)
	}
}

func TestChatModelErrorPropagation(t *testing.T) {
	wantErr := errors.New("provider down")
	var m ChatModel = &staticModel{err: wantErr}
	_, err := m.Chat(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestChatOutCarriesUsageAndModel(t *testing.T) {
	m := &staticModel{out: ChatOut{
		Text:  "done",
		Model: "claude-sonnet-4-5-20250929",
		Usage: Usage{InputTokens: 1200, OutputTokens: 340},
	}}
	out, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "go"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Model != "claude-sonnet-4-5-20250929" {
		t.Fatalf("unexpected model: %q", out.Model)
	}
	if out.Usage.InputTokens != 1200 || out.Usage.OutputTokens != 340 {
		t.Fatalf("unexpected usage: %+v", out.Usage)
	}
}

func TestZeroUsageMeansUnreported(t *testing.T) {
	m := &staticModel{out: ChatOut{Text: "done"}}
	out, _ := m.Chat(context.Background(), nil)
	if out.Usage != (Usage{}) {
		t.Fatalf("expected zero usage, got %+v", out.Usage)
	}
}

func TestRoleConstants(t *testing.T) {
	for _, tc := range []struct {
		role string
		want string
	}{
		{RoleSystem, "system"},
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
	} {
		if tc.role != tc.want {
			t.Errorf("role constant %q != %q", tc.role, tc.want)
		}
	}
}
