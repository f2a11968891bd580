package agent

import (
	"context"
	"testing"

	"github.com/ramarlina/agx-go/graph/model"
)

func TestRunnerRunWorkUsesWorkSystemPrompt(t *testing.T) {
	mock := &model.MockChatModel{Script: []model.ChatOut{{Text: "did the thing"}}}
	r := NewRunner(mock)

	out, err := r.RunWork(context.Background(), "t1", "anthropic", "claude", "do it")
	if err != nil {
		t.Fatalf("RunWork: %v", err)
	}
	if out != "did the thing" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(mock.Calls) != 1 || mock.Calls[0][0].Content != workSystemPrompt {
		t.Fatalf("expected work system prompt, got %+v", mock.Calls)
	}
}

func TestRunnerRunPlanUsesPlanSystemPrompt(t *testing.T) {
	mock := &model.MockChatModel{Script: []model.ChatOut{{Text: "```json\n{}\n```"}}}
	r := NewRunner(mock)

	out, err := r.RunPlan(context.Background(), "t1", "anthropic", "claude", "plan it")
	if err != nil {
		t.Fatalf("RunPlan: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty plan output")
	}
	if mock.Calls[0][0].Content != planSystemPrompt {
		t.Fatalf("expected plan system prompt, got %+v", mock.Calls[0][0])
	}
}

func TestRunnerReportsLastTokenUsage(t *testing.T) {
	mock := &model.MockChatModel{Script: []model.ChatOut{
		{Text: "first", Model: "claude-sonnet-4-5-20250929", Usage: model.Usage{InputTokens: 120, OutputTokens: 40}},
		{Text: "second", Model: "claude-sonnet-4-5-20250929", Usage: model.Usage{InputTokens: 300, OutputTokens: 75}},
	}}
	r := NewRunner(mock)

	if _, err := r.RunWork(context.Background(), "t1", "anthropic", "", "step one"); err != nil {
		t.Fatalf("RunWork: %v", err)
	}
	if _, err := r.RunWork(context.Background(), "t1", "anthropic", "", "step two"); err != nil {
		t.Fatalf("RunWork: %v", err)
	}

	modelName, in, out := r.LastTokenUsage()
	if modelName != "claude-sonnet-4-5-20250929" {
		t.Fatalf("unexpected model: %q", modelName)
	}
	if in != 300 || out != 75 {
		t.Fatalf("expected usage of the latest call, got in=%d out=%d", in, out)
	}
}

func TestRunnerUsageUnchangedOnError(t *testing.T) {
	mock := &model.MockChatModel{Script: []model.ChatOut{
		{Text: "ok", Model: "gpt-4o", Usage: model.Usage{InputTokens: 10, OutputTokens: 5}},
	}}
	r := NewRunner(mock)
	if _, err := r.RunWork(context.Background(), "t1", "openai", "", "go"); err != nil {
		t.Fatalf("RunWork: %v", err)
	}

	mock.Err = context.DeadlineExceeded
	if _, err := r.RunWork(context.Background(), "t1", "openai", "", "again"); err == nil {
		t.Fatal("expected error")
	}

	modelName, in, out := r.LastTokenUsage()
	if modelName != "gpt-4o" || in != 10 || out != 5 {
		t.Fatalf("usage should survive a failed call, got %q in=%d out=%d", modelName, in, out)
	}
}

func TestShellGateRunnerAllChecksPass(t *testing.T) {
	r := ShellGateRunner{}
	out, err := r.Run(context.Background(), []string{"true", "echo ok"}, "", 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Passed {
		t.Fatalf("expected pass, got %+v", out)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
}

func TestShellGateRunnerStopsAtFirstFailure(t *testing.T) {
	r := ShellGateRunner{}
	out, err := r.Run(context.Background(), []string{"false", "echo unreachable"}, "", 2, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Passed {
		t.Fatal("expected failure")
	}
	if out.VerifyFailures != 3 {
		t.Fatalf("expected verifyFailures=3, got %d", out.VerifyFailures)
	}
	if !out.ForceAction {
		t.Fatal("expected forceAction at verifyFailures>=3")
	}
}
