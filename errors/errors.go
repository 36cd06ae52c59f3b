// Package errors defines the diagnostic model of the container.
//
// Configuration problems are collected as Message values and surfaced in
// bulk as a CreationError once injector creation finishes; lookup and
// provisioning problems surface immediately as a ProvisionError. Every
// Message carries a short machine-readable Code, a formatted text, and
// the chain of sources that led to it.
package errors

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Code identifies the kind of a diagnostic message.
type Code string

const (
	// BindingAlreadySet reports a duplicate explicit binding for a key.
	BindingAlreadySet Code = "BINDING_ALREADY_SET"
	// ScopeAlreadySet reports a duplicate scope registration for a name.
	ScopeAlreadySet Code = "SCOPE_ALREADY_SET"
	// ScopeNotFound reports a binding that references an unregistered scope.
	ScopeNotFound Code = "SCOPE_NOT_FOUND"
	// MissingBinding reports a key that could not be resolved.
	MissingBinding Code = "MISSING_BINDING"
	// MissingConstructor reports a type with no usable construction recipe.
	MissingConstructor Code = "MISSING_CONSTRUCTOR"
	// JitDisabled reports a just-in-time binding forbidden by configuration.
	JitDisabled Code = "JIT_DISABLED"
	// CyclicDependency reports an irrecoverable dependency cycle.
	CyclicDependency Code = "CYCLIC_DEPENDENCY"
	// ConversionFailed reports a type converter that rejected a constant.
	ConversionFailed Code = "CONVERSION_FAILED"
	// ConverterReturnedWrongType reports a converter producing a value of
	// a type other than the one requested.
	ConverterReturnedWrongType Code = "CONVERTER_RETURNED_WRONG_TYPE"
	// RestrictedBindingSource reports a binding rejected by the permit check.
	RestrictedBindingSource Code = "RESTRICTED_BINDING_SOURCE"
	// MalformedInjectionPoint reports an unusable constructor, field or method.
	MalformedInjectionPoint Code = "MALFORMED_INJECTION_POINT"
	// QualifierFormConflict reports a qualifier name used both as a marker
	// and as a value qualifier for the same type.
	QualifierFormConflict Code = "QUALIFIER_FORM_CONFLICT"
	// ScannerError reports a misbehaving module method scanner.
	ScannerError Code = "SCANNER_ERROR"
	// ExposedButNotBound reports an exposed key with no binding in its
	// private environment.
	ExposedButNotBound Code = "EXPOSED_BUT_NOT_BOUND"
	// InjectionFailed reports user code failing during provisioning.
	InjectionFailed Code = "INJECTION_FAILED"
	// ModuleError reports a module that failed while being configured.
	ModuleError Code = "MODULE_ERROR"
	// InternalError reports an invariant violation inside the container.
	InternalError Code = "INTERNAL_ERROR"
)

// learnMoreBase is the documentation root linked from formatted messages.
const learnMoreBase = "https://github.com/calummacc/wisp/wiki/errors#"

// LearnMoreURL returns the documentation link for a code.
func LearnMoreURL(code Code) string {
	return learnMoreBase + strings.ToLower(string(code))
}

// Message is a single diagnostic: a code, formatted text, the sources the
// problem was recorded at, and an optional root cause.
type Message struct {
	Code    Code
	Text    string
	Sources []any
	Cause   error
}

// NewMessage creates a message with a formatted text.
func NewMessage(code Code, format string, args ...any) *Message {
	return &Message{Code: code, Text: fmt.Sprintf(format, args...)}
}

// WithSource appends a source to the message and returns it.
func (m *Message) WithSource(source any) *Message {
	if source != nil {
		m.Sources = append(m.Sources, source)
	}
	return m
}

// WithCause attaches a root cause to the message and returns it.
func (m *Message) WithCause(cause error) *Message {
	m.Cause = cause
	return m
}

// Error implements the error interface.
func (m *Message) Error() string {
	var b strings.Builder
	if m.Code != "" {
		b.WriteString(string(m.Code))
		b.WriteString(": ")
	}
	b.WriteString(m.Text)
	for _, s := range m.Sources {
		fmt.Fprintf(&b, "\n  at %v", s)
	}
	if m.Cause != nil {
		fmt.Fprintf(&b, "\n  caused by: %v", m.Cause)
	}
	if m.Code != "" {
		fmt.Fprintf(&b, "\n  learn more: %s", LearnMoreURL(m.Code))
	}
	return b.String()
}

// Unwrap exposes the root cause to errors.Is and errors.As.
func (m *Message) Unwrap() error {
	return m.Cause
}

// mergeKey groups messages that describe the same problem reported from
// several sites, so they print under a single heading.
func (m *Message) mergeKey() string {
	return string(m.Code) + "\x00" + m.Text
}

// formatMessages renders a numbered list of messages, merging duplicates.
func formatMessages(header string, messages []*Message) string {
	var b strings.Builder
	b.WriteString(header)

	type group struct {
		first   *Message
		sources []any
	}
	var order []string
	groups := make(map[string]*group)
	for _, m := range messages {
		k := m.mergeKey()
		g, ok := groups[k]
		if !ok {
			g = &group{first: m}
			groups[k] = g
			order = append(order, k)
		}
		g.sources = append(g.sources, m.Sources...)
	}

	for i, k := range order {
		g := groups[k]
		fmt.Fprintf(&b, "\n\n%d) ", i+1)
		if g.first.Code != "" {
			fmt.Fprintf(&b, "[%s] ", g.first.Code)
		}
		b.WriteString(g.first.Text)
		for _, s := range g.sources {
			fmt.Fprintf(&b, "\n  at %v", s)
		}
		if g.first.Cause != nil {
			fmt.Fprintf(&b, "\n  caused by: %v", g.first.Cause)
		}
		if g.first.Code != "" {
			fmt.Fprintf(&b, "\n  learn more: %s", LearnMoreURL(g.first.Code))
		}
	}
	fmt.Fprintf(&b, "\n\n%d error(s)", len(order))
	return b.String()
}

// CreationError aggregates every configuration problem found while an
// injector was being created. Creation is all-or-nothing: either the
// injector is usable or this error lists everything that went wrong.
type CreationError struct {
	Messages []*Message
}

// NewCreationError wraps collected messages.
func NewCreationError(messages []*Message) *CreationError {
	return &CreationError{Messages: messages}
}

// Error implements the error interface.
func (e *CreationError) Error() string {
	return formatMessages("injector creation failed:", e.Messages)
}

// Combined merges the messages into a single multi-error value, so callers
// can use errors.Is and errors.As against individual causes.
func (e *CreationError) Combined() error {
	var err error
	for _, m := range e.Messages {
		err = multierr.Append(err, m)
	}
	return err
}

// ProvisionError reports a failed lookup or provisioning. Each message
// carries the dependency chain active when the failure occurred.
type ProvisionError struct {
	Messages []*Message
}

// NewProvisionError wraps one or more messages.
func NewProvisionError(messages ...*Message) *ProvisionError {
	return &ProvisionError{Messages: messages}
}

// Error implements the error interface.
func (e *ProvisionError) Error() string {
	return formatMessages("provisioning failed:", e.Messages)
}

// Combined merges the messages into a single multi-error value.
func (e *ProvisionError) Combined() error {
	var err error
	for _, m := range e.Messages {
		err = multierr.Append(err, m)
	}
	return err
}

// ConfigurationError reports misuse of the container API itself, such as
// an ill-formed key or a nil module. These are programmer errors and are
// raised immediately rather than collected.
type ConfigurationError struct {
	Message *Message
}

// NewConfigurationError creates a configuration error with formatted text.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: NewMessage(InternalError, format, args...)}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return e.Message.Error()
}
