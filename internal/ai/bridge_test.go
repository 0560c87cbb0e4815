package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yhaddad/go-relay/internal/ai"
)

func TestTriggerMention(t *testing.T) {
	trigger := &ai.Trigger{}

	prompt, ok := trigger.Match("@ai what is the weather?")
	assert.True(t, ok)
	assert.Equal(t, "what is the weather?", prompt)

	prompt, ok = trigger.Match("  @ai   trimmed  ")
	assert.True(t, ok)
	assert.Equal(t, "trimmed", prompt)

	// The mention only counts at the start of the body.
	_, ok = trigger.Match("ask @ai about it")
	assert.False(t, ok)
}

func TestTriggerKeyword(t *testing.T) {
	trigger := &ai.Trigger{Keyword: "robot:"}

	prompt, ok := trigger.Match("hey robot: tell me a joke")
	assert.True(t, ok)
	assert.Equal(t, "hey robot: tell me a joke", prompt)

	_, ok = trigger.Match("nothing to see here")
	assert.False(t, ok)
}

func TestTriggerNilReceiver(t *testing.T) {
	var trigger *ai.Trigger

	// The mention works even without a configured trigger.
	prompt, ok := trigger.Match("@ai hello")
	assert.True(t, ok)
	assert.Equal(t, "hello", prompt)

	_, ok = trigger.Match("hello")
	assert.False(t, ok)
}

func TestNewAnthropicCompleterRequiresKey(t *testing.T) {
	_, err := ai.NewAnthropicCompleter("", "")
	assert.Error(t, err)

	_, err = ai.NewAnthropicCompleter("   ", "some-model")
	assert.Error(t, err)
}
