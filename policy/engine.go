package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the send policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
// The module must declare package send_policy.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.send_policy"),
		rego.Module("send_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// SendInput is the document an outbound message is checked against.
type SendInput struct {
	To     string      `json:"to"`
	From   string      `json:"from"`
	Body   string      `json:"body"`
	Sender SenderInput `json:"sender"`
}

// SenderInput describes the sender phone and its account.
type SenderInput struct {
	PhoneNumberID string `json:"phone_number_id"`
	IsActive      bool   `json:"is_active"`
	AccountActive bool   `json:"account_active"`
}

// Evaluate checks the send policy.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DecisionAllow, "unexpected return type", nil
	}
	decision, _ := doc["decision"].(string)
	if decision == "" {
		decision = DecisionAllow
	}
	return decision, joinReasons(doc["reasons"]), nil
}

func joinReasons(v interface{}) string {
	items, ok := v.([]interface{})
	if !ok {
		return ""
	}
	reasons := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			reasons = append(reasons, s)
		}
	}
	sort.Strings(reasons)
	return strings.Join(reasons, "; ")
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package send_policy

default decision = "allow"

decision = "block" {
	count(reasons) > 0
}

reasons["sender phone is inactive"] {
	not input.sender.is_active
}

reasons["sender account is inactive"] {
	not input.sender.account_active
}

# Ten concatenated SMS segments.
reasons["message body exceeds 1600 characters"] {
	count(input.body) > 1600
}
`
