package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeInput(body string) SendInput {
	return SendInput{
		To:   "+15551234567",
		From: "+15550000001",
		Body: body,
		Sender: SenderInput{
			PhoneNumberID: "sp1",
			IsActive:      true,
			AccountActive: true,
		},
	}
}

func TestDefaultPolicyAllows(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	decision, reason, err := engine.Evaluate(ctx, activeInput("hello"))
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
	assert.Empty(t, reason)
}

func TestDefaultPolicyBlocks(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	in := activeInput(strings.Repeat("a", 1601))
	in.Sender.IsActive = false
	decision, reason, err := engine.Evaluate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
	assert.Equal(t, "message body exceeds 1600 characters; sender phone is inactive", reason)
}

func TestCustomPolicy(t *testing.T) {
	ctx := context.Background()
	custom := `
package send_policy

default decision = "allow"

decision = "block" {
	startswith(input.to, "+44")
}
`
	engine, err := NewEngine(ctx, custom)
	require.NoError(t, err)

	in := activeInput("hi")
	in.To = "+442079460958"
	decision, _, err := engine.Evaluate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package send_policy\n decision = {")
	assert.Error(t, err)
}
