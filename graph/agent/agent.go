// Package agent provides the default graph.AgentRunner and graph.GateRunner
// implementations, driving an LLM through graph/model's ChatModel interface.
package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/ramarlina/agx-go/graph"
	"github.com/ramarlina/agx-go/graph/model"
)

// Runner is the default graph.AgentRunner: it drives work and plan prompts
// through a single ChatModel, with a system prompt distinguishing the two
// call kinds. It remembers the token usage of the most recent call so the
// execution loop can attribute cost to the node it just dispatched.
type Runner struct {
	Chat model.ChatModel

	mu        sync.Mutex
	lastModel string
	lastUsage model.Usage
}

// NewRunner wraps chat as a graph.AgentRunner.
func NewRunner(chat model.ChatModel) *Runner {
	return &Runner{Chat: chat}
}

const workSystemPrompt = "You are an engineering agent executing one unit of work in a larger execution graph. Make the described change and report what you did."

const planSystemPrompt = "You are a planning agent. Given a task, respond with a JSON execution plan matching the requested schema, wrapped in a fenced ```json code block."

// RunWork implements graph.AgentRunner.
func (r *Runner) RunWork(ctx context.Context, taskID, provider, modelName, prompt string) (string, error) {
	return r.chat(ctx, workSystemPrompt, prompt)
}

// RunPlan implements graph.AgentRunner.
func (r *Runner) RunPlan(ctx context.Context, taskID, provider, modelName, prompt string) (string, error) {
	return r.chat(ctx, planSystemPrompt, prompt)
}

// LastTokenUsage implements graph.TokenUsageReporter.
func (r *Runner) LastTokenUsage() (string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastModel, r.lastUsage.InputTokens, r.lastUsage.OutputTokens
}

func (r *Runner) chat(ctx context.Context, system, prompt string) (string, error) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: prompt},
	}
	out, err := r.Chat.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("agent chat failed: %w", err)
	}
	r.mu.Lock()
	r.lastModel = out.Model
	r.lastUsage = out.Usage
	r.mu.Unlock()
	return out.Text, nil
}

// ShellGateRunner implements graph.GateRunner by running each check string
// as a shell command in cwd, in order, stopping at the first failure.
type ShellGateRunner struct{}

// Run implements graph.GateRunner.
func (ShellGateRunner) Run(ctx context.Context, checks []string, cwd string, verifyFailures int, onLog func(string)) (graph.VerifyOutcome, error) {
	var results []string
	for _, check := range checks {
		cmd := exec.CommandContext(ctx, "sh", "-c", check)
		if cwd != "" {
			cmd.Dir = cwd
		}
		out, err := cmd.CombinedOutput()
		if onLog != nil {
			onLog(strings.TrimSpace(string(out)))
		}
		if err != nil {
			return graph.VerifyOutcome{
				Passed:         false,
				Results:        results,
				VerifyFailures: verifyFailures + 1,
				ForceAction:    verifyFailures+1 >= 3,
				Reason:         fmt.Sprintf("check failed: %s: %v", check, err),
			}, nil
		}
		results = append(results, check)
	}
	return graph.VerifyOutcome{Passed: true, Results: results, VerifyFailures: verifyFailures}, nil
}
