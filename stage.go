package wisp

import (
	"go.uber.org/zap"
)

// Stage selects how eagerly the injector initialises at creation time.
type Stage int

const (
	// Tool prepares and validates the graph without constructing any
	// instances; intended for static inspection tooling.
	Tool Stage = iota
	// Development constructs singletons lazily for fast startup.
	Development
	// Production promotes every singleton to eager so configuration
	// problems surface at creation time.
	Production
)

// String renders the stage name.
func (s Stage) String() string {
	switch s {
	case Tool:
		return "TOOL"
	case Production:
		return "PRODUCTION"
	default:
		return "DEVELOPMENT"
	}
}

// InjectorBuilder assembles an injector from modules and creation
// options.
type InjectorBuilder struct {
	stage   Stage
	logger  *zap.Logger
	mode    StackTraceMode
	modules []Module
}

// NewInjectorBuilder creates a builder with development stage defaults.
func NewInjectorBuilder() *InjectorBuilder {
	return &InjectorBuilder{
		stage:  Development,
		logger: zap.NewNop(),
		mode:   stackTraceModeFromEnv(),
	}
}

// Stage selects the creation stage.
func (b *InjectorBuilder) Stage(s Stage) *InjectorBuilder {
	b.stage = s
	return b
}

// Logger installs the logger used for warnings and debug traces. The
// logger is also seeded as the builtin *zap.Logger binding.
func (b *InjectorBuilder) Logger(l *zap.Logger) *InjectorBuilder {
	if l != nil {
		b.logger = l
	}
	return b
}

// StackTraces overrides the source-capture mode read from the
// environment.
func (b *InjectorBuilder) StackTraces(m StackTraceMode) *InjectorBuilder {
	b.mode = m
	return b
}

// Install adds modules to the injector being built.
func (b *InjectorBuilder) Install(modules ...Module) *InjectorBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

// Build records the modules, compiles the element stream and returns the
// injector. All configuration problems are collected into a single
// *errors.CreationError.
func (b *InjectorBuilder) Build() (*Injector, error) {
	elements, permits := recordElements(b.stage, b.mode, b.modules)
	inj, err := compile(nil, b.stage, b.logger, elements, permits)
	if err != nil {
		return nil, err
	}
	// The permit map is only consulted during creation; drop it before
	// concurrent callers are admitted.
	permits.Clear()
	return inj, nil
}

// CreateInjector creates a development-stage injector from modules.
func CreateInjector(modules ...Module) (*Injector, error) {
	return NewInjectorBuilder().Install(modules...).Build()
}

// CreateStagedInjector creates an injector in an explicit stage.
func CreateStagedInjector(stage Stage, modules ...Module) (*Injector, error) {
	return NewInjectorBuilder().Stage(stage).Install(modules...).Build()
}
