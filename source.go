package wisp

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// StackTraceMode controls how much call-site information the recorder
// captures per element. Collecting stack traces costs time during module
// installation; the default captures declaring call sites only.
type StackTraceMode int

const (
	// StackTraceOff records module names only.
	StackTraceOff StackTraceMode = iota
	// StackTraceDeclaringSource captures the declaring call site of each
	// element but no module installation stacks.
	StackTraceDeclaringSource
	// StackTraceComplete captures declaring call sites and partial call
	// stacks for module installation.
	StackTraceComplete
)

// stackTraceEnvVar selects the stack trace mode from the environment.
const stackTraceEnvVar = "WISP_INCLUDE_STACK_TRACES"

// stackTraceModeFromEnv reads the mode from the environment, defaulting
// to StackTraceDeclaringSource.
func stackTraceModeFromEnv() StackTraceMode {
	switch strings.ToUpper(os.Getenv(stackTraceEnvVar)) {
	case "OFF":
		return StackTraceOff
	case "COMPLETE":
		return StackTraceComplete
	case "ONLY_FOR_DECLARING_SOURCE", "":
		return StackTraceDeclaringSource
	default:
		return StackTraceDeclaringSource
	}
}

// ModuleSource is one link in the module installation path: the module's
// name, the module that installed it, and (in complete mode) the partial
// call stack of the install call.
type ModuleSource struct {
	name             string
	parent           *ModuleSource
	partialCallStack []uintptr
}

// Name returns the installed module's name.
func (m *ModuleSource) Name() string { return m.name }

// Parent returns the installing module's source, or nil at the top level.
func (m *ModuleSource) Parent() *ModuleSource { return m.parent }

// Path returns the installation path from this module up to the top-level
// module.
func (m *ModuleSource) Path() []string {
	var path []string
	for s := m; s != nil; s = s.parent {
		path = append(path, s.name)
	}
	return path
}

// String renders the installation path, innermost module first.
func (m *ModuleSource) String() string {
	return strings.Join(m.Path(), " <- ")
}

// ElementSource identifies where a configuration element came from: a
// human-readable declaring source (a captured call site or a value passed
// to WithSource) and the module installation path that was active when
// the element was recorded.
type ElementSource struct {
	declaring       any
	module          *ModuleSource
	original        *ElementSource
	trustedOriginal bool
	scanner         ModuleScanner
}

// DeclaringSource returns the call site or user-supplied source value.
func (s *ElementSource) DeclaringSource() any { return s.declaring }

// ModuleSource returns the installation path node the element was
// recorded under.
func (s *ElementSource) ModuleSource() *ModuleSource { return s.module }

// OriginalSource returns the source of the element this one was derived
// from, if any. Only trusted original sources participate in permit
// checks.
func (s *ElementSource) OriginalSource() (*ElementSource, bool) {
	return s.original, s.original != nil
}

// IsTrustedOriginal reports whether the original source was assigned
// internally rather than through a public source-spoofing API.
func (s *ElementSource) IsTrustedOriginal() bool { return s.trustedOriginal }

// String renders the source for diagnostic messages.
func (s *ElementSource) String() string {
	var b strings.Builder
	if s.declaring != nil {
		fmt.Fprintf(&b, "%v", s.declaring)
	} else {
		b.WriteString("<unknown source>")
	}
	if s.module != nil {
		fmt.Fprintf(&b, " (module %s)", s.module)
	}
	return b.String()
}

// recorderSkipSet matches the recorder's and the builder DSL's own stack
// frames, which never count as a declaring source.
var recorderSkipSet = []string{
	".(*recordingBinder)",
	".(*privateBinder)",
	".(*BindingBuilder)",
	".(*ConstantBindingBuilder)",
	".(*InjectorBuilder)",
	".Bind[",
	".GetElements",
	".CreateInjector",
	".CreateStagedInjector",
	"runtime.",
	"reflect.",
}

// captureCallSite walks the stack and returns the first frame outside the
// recorder, the builder DSL and any caller-registered skip prefixes.
// Returns nil when capture is disabled.
func captureCallSite(mode StackTraceMode, skipPrefixes []string) any {
	if mode == StackTraceOff {
		return nil
	}
	var pcs [24]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !skippedFrame(frame.Function, skipPrefixes) {
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
		if !more {
			return nil
		}
	}
}

// skippedFrame reports whether a function belongs to the skip set.
func skippedFrame(fn string, skipPrefixes []string) bool {
	for _, p := range recorderSkipSet {
		if strings.Contains(fn, p) {
			return true
		}
	}
	for _, p := range skipPrefixes {
		if strings.Contains(fn, p) {
			return true
		}
	}
	return false
}

// capturePartialStack records raw program counters of the install call in
// complete mode.
func capturePartialStack(mode StackTraceMode) []uintptr {
	if mode != StackTraceComplete {
		return nil
	}
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}
