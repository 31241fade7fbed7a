// Package policy evaluates operator commands against a rego policy before they are sent.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by a policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is what a policy sees for one command.
type Input struct {
	Command       string
	ChatID        string
	SessionID     string
	Content       string
	Enabled       bool
	SessionOnline bool
	ChatActive    bool
}

func (in Input) toMap() map[string]interface{} {
	return map[string]interface{}{
		"command":        in.Command,
		"chat_id":        in.ChatID,
		"session_id":     in.SessionID,
		"content":        in.Content,
		"enabled":        in.Enabled,
		"session_online": in.SessionOnline,
		"chat_active":    in.ChatActive,
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Decision string
	Reasons  []string
}

// Allowed reports whether the command may be sent.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionBlock
}

// Reason joins the deny messages.
func (d Decision) Reason() string {
	return strings.Join(d.Reasons, "; ")
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.command_policy"),
		rego.Module("command_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads a policy file, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks one command. A policy that yields no decision allows it.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Decision: DecisionAllow}, nil
	}

	out := Decision{Decision: DecisionAllow}
	if s, ok := doc["decision"].(string); ok {
		out.Decision = s
	}
	if deny, ok := doc["deny"].([]interface{}); ok {
		for _, v := range deny {
			if msg, ok := v.(string); ok {
				out.Reasons = append(out.Reasons, msg)
			}
		}
		sort.Strings(out.Reasons)
	}
	return out, nil
}

// DefaultPolicy blocks empty and oversized replies and replies to closed chats.
const DefaultPolicy = `
package command_policy

default decision = "allow"

deny[msg] {
	input.command == "reply.send"
	trim_space(input.content) == ""
	msg := "reply is empty"
}

deny[msg] {
	input.command == "reply.send"
	count(input.content) > 4000
	msg := "reply exceeds 4000 characters"
}

deny[msg] {
	input.command == "reply.send"
	input.chat_active == false
	msg := "chat is closed"
}

decision = "block" {
	count(deny) > 0
}
`
