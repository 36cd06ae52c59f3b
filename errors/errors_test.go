package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessageRendering tests the single-message format: code, text,
// sources, cause and the learn-more link.
func TestMessageRendering(t *testing.T) {
	cause := fmt.Errorf("root cause")
	m := NewMessage(MissingBinding, "no binding for %s", "io.Reader").
		WithSource("app.go:10").
		WithCause(cause)

	text := m.Error()
	assert.Contains(t, text, "MISSING_BINDING")
	assert.Contains(t, text, "no binding for io.Reader")
	assert.Contains(t, text, "at app.go:10")
	assert.Contains(t, text, "root cause")
	assert.Contains(t, text, LearnMoreURL(MissingBinding))

	assert.Equal(t, cause, m.Unwrap())
}

// TestCreationErrorGroupsMergeableMessages tests that identical problems
// reported from several sites print under one heading.
func TestCreationErrorGroupsMergeableMessages(t *testing.T) {
	err := NewCreationError([]*Message{
		NewMessage(MissingBinding, "no binding for io.Reader").WithSource("a.go:1"),
		NewMessage(MissingBinding, "no binding for io.Reader").WithSource("b.go:2"),
		NewMessage(ScopeNotFound, "no scope named %q", "request"),
	})
	text := err.Error()
	assert.Contains(t, text, "1)")
	assert.Contains(t, text, "2)")
	assert.NotContains(t, text, "3)", "duplicate missing-binding messages merge")
	assert.Contains(t, text, "at a.go:1")
	assert.Contains(t, text, "at b.go:2")
	assert.Contains(t, text, "2 error(s)")
}

// TestCombinedSupportsErrorsAs tests that the multi-error view exposes
// individual messages.
func TestCombinedSupportsErrorsAs(t *testing.T) {
	m := NewMessage(CyclicDependency, "cycle")
	err := NewProvisionError(m)

	var msg *Message
	require.ErrorAs(t, err.Combined(), &msg)
	assert.Equal(t, CyclicDependency, msg.Code)
}

// TestLearnMoreURL tests the code-to-link mapping.
func TestLearnMoreURL(t *testing.T) {
	assert.Equal(t,
		"https://github.com/calummacc/wisp/wiki/errors#binding_already_set",
		LearnMoreURL(BindingAlreadySet))
}
