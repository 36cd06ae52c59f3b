package wisp

import (
	"github.com/calummacc/wisp/errors"
	"github.com/calummacc/wisp/matcher"
)

// Binder collects configuration from modules. A binder is handed to
// Module.Configure and is only valid for the duration of that call; every
// call records an immutable element rather than mutating live container
// state.
type Binder interface {
	// Bind starts a binding for the unqualified key of a type.
	Bind(t TypeLiteral) *BindingBuilder
	// BindKey starts a binding for a key.
	BindKey(k Key) *BindingBuilder
	// BindConstant starts a qualified constant binding.
	BindConstant(q Qualifier) *ConstantBindingBuilder
	// BindScope registers a scope implementation under a name.
	BindScope(name string, s Scope)
	// ConvertToTypes registers a converter from string constants to
	// matching target types.
	ConvertToTypes(m matcher.Matcher[TypeLiteral], c TypeConverter)
	// BindTypeListener registers a listener notified of matching types
	// during injector creation.
	BindTypeListener(m matcher.Matcher[TypeLiteral], l TypeListener)
	// BindProvisionListener registers listeners around provisioning of
	// matching keys.
	BindProvisionListener(m matcher.Matcher[Key], ls ...ProvisionListener)
	// BindInterceptor registers method interceptors for matching types
	// and method names.
	BindInterceptor(cm matcher.Matcher[TypeLiteral], mm matcher.Matcher[string], is ...MethodInterceptor)
	// RequestInjection injects the instance's members at creation time.
	RequestInjection(instance any)
	// RequestStaticInjection fills the pointed-to variables at creation
	// time, in request order.
	RequestStaticInjection(targets ...any)
	// Install records another module's configuration. Installing the
	// same module instance twice is a no-op.
	Install(m Module)
	// NewPrivateBinder opens a private environment whose bindings are
	// hidden from this environment except through Expose.
	NewPrivateBinder() PrivateBinder
	// GetProvider returns a provider usable once the injector exists.
	GetProvider(k Key) Provider
	// GetMembersInjector returns a members injector usable once the
	// injector exists.
	GetMembersInjector(t TypeLiteral) MembersInjector
	// AddError records a configuration error.
	AddError(format string, args ...any)
	// AddMessage records a pre-built diagnostic.
	AddMessage(m *errors.Message)
	// WithSource returns a binder attributing elements to the given
	// source instead of a captured call site.
	WithSource(source any) Binder
	// SkipSources returns a binder whose call-site capture skips frames
	// of functions containing any of the given substrings.
	SkipSources(prefixes ...string) Binder
	// RequireExplicitBindings forbids just-in-time bindings.
	RequireExplicitBindings()
	// DisableCircularProxies makes circular references fatal.
	DisableCircularProxies()
	// RequireInjectedConstructors restricts just-in-time construction to
	// types with registered constructors or inject-tagged fields.
	RequireInjectedConstructors()
	// RequireExactBindingQualifiers forbids the unqualified-key fallback
	// for marker-qualified keys.
	RequireExactBindingQualifiers()
	// ScanModuleMethods registers a module method scanner.
	ScanModuleMethods(s ModuleScanner)
	// RestrictQualifier gates bindings under the named qualifier.
	RestrictQualifier(name string, r Restriction)
	// RestrictType gates bindings for the type.
	RestrictType(t TypeLiteral, r Restriction)
	// CurrentStage returns the stage the injector is being created in.
	CurrentStage() Stage
}

// PrivateBinder is a Binder recording into a private environment.
type PrivateBinder interface {
	Binder
	// Expose makes the environment's binding for the key visible to the
	// enclosing environment.
	Expose(k Key)
}

// Bind is a generic convenience for Binder.Bind.
func Bind[T any](b Binder) *BindingBuilder {
	return b.BindKey(KeyOf[T]())
}

// scanTarget is a module awaiting its scanner pass, with the binder that
// attributes recorded bindings to the right environment and module path.
type scanTarget struct {
	module Module
	binder *recordingBinder
}

// recorderState is shared by every binder of one recording session.
type recorderState struct {
	stage     Stage
	mode      StackTraceMode
	permits   *PermitMap
	installed map[Module]bool
	scanners  []ModuleScanner
	toScan    []scanTarget
	scanned   map[int]map[int]bool // scanner index -> scan target index
	scanning  bool
}

// recordingBinder is the element recorder: the Binder implementation that
// captures a source per element and tracks the module installation stack
// and private environments.
type recordingBinder struct {
	state        *recorderState
	elements     *[]Element
	moduleSource *ModuleSource
	source       any
	skipPrefixes []string
	privateEnv   *PrivateEnvironment
	scanner      ModuleScanner
}

// recordElements runs the modules against a fresh recorder and returns
// the immutable element stream plus the finished permit map.
func recordElements(stage Stage, mode StackTraceMode, modules []Module) ([]Element, *PermitMap) {
	state := &recorderState{
		stage:     stage,
		mode:      mode,
		permits:   newPermitMap(),
		installed: make(map[Module]bool),
		scanned:   make(map[int]map[int]bool),
	}
	var elements []Element
	root := &recordingBinder{state: state, elements: &elements}
	for _, m := range modules {
		root.Install(m)
	}
	root.runScanners()
	state.permits.finish()
	return elements, state.permits
}

// GetElements records the modules in the development stage.
func GetElements(modules ...Module) []Element {
	return GetStagedElements(Development, modules...)
}

// GetStagedElements records the modules in the given stage.
func GetStagedElements(stage Stage, modules ...Module) []Element {
	elements, _ := recordElements(stage, stackTraceModeFromEnv(), modules)
	return elements
}

// GetModule reconstitutes a module from an element stream. Installing the
// result into a fresh recorder yields an equivalent stream; together with
// GetElements this forms the round-trip used by tools to rewrite
// configuration.
func GetModule(elements []Element) Module {
	return NewModule("elements", func(b Binder) {
		for _, e := range elements {
			e.ApplyTo(b)
		}
	})
}

func (b *recordingBinder) append(e Element) {
	*b.elements = append(*b.elements, e)
}

// newSource builds the element source for the current call: the
// caller-supplied source when WithSource is active, otherwise the first
// stack frame outside the recorder and the skip set.
func (b *recordingBinder) newSource() *ElementSource {
	declaring := b.source
	if declaring == nil {
		declaring = captureCallSite(b.state.mode, b.skipPrefixes)
	}
	return &ElementSource{
		declaring: declaring,
		module:    b.moduleSource,
		scanner:   b.scanner,
	}
}

// newScannerSource attributes an element to a scanner run.
func (b *recordingBinder) newScannerSource(s ModuleScanner) *ElementSource {
	src := b.newSource()
	src.scanner = s
	return src
}

// fork copies the binder for a derived recording context.
func (b *recordingBinder) fork() *recordingBinder {
	clone := *b
	return &clone
}

func (b *recordingBinder) Bind(t TypeLiteral) *BindingBuilder {
	return b.BindKey(NewKey(t))
}

func (b *recordingBinder) BindKey(k Key) *BindingBuilder {
	e := &BindingElement{
		baseElement: baseElement{source: b.newSource()},
		Key:         k,
		Target:      &UntargettedTarget{},
		Scoping:     Unscoped,
	}
	b.append(e)
	return &BindingBuilder{binder: b, element: e}
}

func (b *recordingBinder) BindConstant(q Qualifier) *ConstantBindingBuilder {
	if q.IsZero() {
		b.AddError("constant bindings require a qualifier")
	}
	return &ConstantBindingBuilder{binder: b, qualifier: q, source: b.newSource()}
}

func (b *recordingBinder) BindScope(name string, s Scope) {
	b.append(&ScopeRegistration{
		baseElement: baseElement{source: b.newSource()},
		Name:        name,
		Scope:       s,
	})
}

func (b *recordingBinder) ConvertToTypes(m matcher.Matcher[TypeLiteral], c TypeConverter) {
	b.append(&TypeConverterRegistration{
		baseElement: baseElement{source: b.newSource()},
		Matcher:     m,
		Converter:   c,
	})
}

func (b *recordingBinder) BindTypeListener(m matcher.Matcher[TypeLiteral], l TypeListener) {
	b.append(&TypeListenerRegistration{
		baseElement: baseElement{source: b.newSource()},
		Matcher:     m,
		Listener:    l,
	})
}

func (b *recordingBinder) BindProvisionListener(m matcher.Matcher[Key], ls ...ProvisionListener) {
	b.append(&ProvisionListenerRegistration{
		baseElement: baseElement{source: b.newSource()},
		Matcher:     m,
		Listeners:   ls,
	})
}

func (b *recordingBinder) BindInterceptor(cm matcher.Matcher[TypeLiteral], mm matcher.Matcher[string], is ...MethodInterceptor) {
	b.append(&InterceptorRegistration{
		baseElement:   baseElement{source: b.newSource()},
		ClassMatcher:  cm,
		MethodMatcher: mm,
		Interceptors:  is,
	})
}

func (b *recordingBinder) RequestInjection(instance any) {
	if instance == nil {
		b.AddError("cannot request injection of a nil instance")
		return
	}
	b.append(&InjectionRequest{
		baseElement: baseElement{source: b.newSource()},
		Type:        typeLiteralFor(instance),
		Instance:    instance,
	})
}

func (b *recordingBinder) RequestStaticInjection(targets ...any) {
	b.append(&StaticInjectionRequest{
		baseElement: baseElement{source: b.newSource()},
		Targets:     targets,
	})
}

func (b *recordingBinder) Install(m Module) {
	if m == nil {
		panic(errors.NewConfigurationError("cannot install a nil module"))
	}
	if b.state.scanning && hasProviderMethods(m) {
		b.AddMessage(errors.NewMessage(errors.ScannerError,
			"module %s installed by a scanner may not declare provider methods", moduleName(m)).
			WithSource(b.newSource()))
		return
	}
	if comparableModule(m) {
		if b.state.installed[m] {
			return
		}
		b.state.installed[m] = true
	}

	ms := &ModuleSource{
		name:             moduleName(m),
		parent:           b.moduleSource,
		partialCallStack: capturePartialStack(b.state.mode),
	}
	b.state.permits.register(ms, modulePermits(m))

	child := b.fork()
	child.moduleSource = ms
	child.source = nil
	child.skipPrefixes = nil

	func() {
		defer func() {
			if r := recover(); r != nil {
				src := child.newSource()
				msg := errors.NewMessage(errors.ModuleError,
					"module %s failed during configure: %v", moduleName(m), r).
					WithSource(src)
				if err, ok := r.(error); ok {
					msg.WithCause(err)
				}
				b.append(&MessageElement{baseElement: baseElement{source: src}, Message: msg})
			}
		}()
		m.Configure(child)
	}()

	b.state.toScan = append(b.state.toScan, scanTarget{module: m, binder: child})
}

func (b *recordingBinder) NewPrivateBinder() PrivateBinder {
	env := &PrivateEnvironment{
		baseElement: baseElement{source: b.newSource()},
	}
	b.append(env)
	child := b.fork()
	child.elements = &env.Elements
	child.privateEnv = env
	return &privateBinder{recordingBinder: child}
}

func (b *recordingBinder) GetProvider(k Key) Provider {
	e := &ProviderLookup{
		baseElement: baseElement{source: b.newSource()},
		Dependency:  NewDependency(k),
	}
	b.append(e)
	return e.Provider()
}

func (b *recordingBinder) GetMembersInjector(t TypeLiteral) MembersInjector {
	e := &MembersInjectorLookup{
		baseElement: baseElement{source: b.newSource()},
		Type:        t,
	}
	b.append(e)
	return e.MembersInjector()
}

func (b *recordingBinder) AddError(format string, args ...any) {
	msg := errors.NewMessage(errors.ModuleError, format, args...)
	b.AddMessage(msg)
}

func (b *recordingBinder) AddMessage(m *errors.Message) {
	src := b.newSource()
	if len(m.Sources) == 0 {
		m.WithSource(src)
	}
	b.append(&MessageElement{baseElement: baseElement{source: src}, Message: m})
}

// addPointError records an injection point problem, preserving a typed
// message when one is available.
func (b *recordingBinder) addPointError(err error) {
	if msg, ok := err.(*errors.Message); ok {
		b.AddMessage(msg)
		return
	}
	b.AddMessage(errors.NewMessage(errors.MalformedInjectionPoint, "%v", err))
}

func (b *recordingBinder) WithSource(source any) Binder {
	clone := b.fork()
	clone.source = source
	return clone
}

func (b *recordingBinder) SkipSources(prefixes ...string) Binder {
	clone := b.fork()
	clone.skipPrefixes = append(append([]string(nil), b.skipPrefixes...), prefixes...)
	return clone
}

func (b *recordingBinder) RequireExplicitBindings() {
	b.appendOption(RequireExplicitBindingsFlag)
}

func (b *recordingBinder) DisableCircularProxies() {
	b.appendOption(DisableCircularProxiesFlag)
}

func (b *recordingBinder) RequireInjectedConstructors() {
	b.appendOption(RequireInjectedConstructorsFlag)
}

func (b *recordingBinder) RequireExactBindingQualifiers() {
	b.appendOption(RequireExactBindingQualifiersFlag)
}

func (b *recordingBinder) appendOption(flag OptionFlag) {
	b.append(&OptionElement{baseElement: baseElement{source: b.newSource()}, Flag: flag})
}

func (b *recordingBinder) ScanModuleMethods(s ModuleScanner) {
	if b.state.scanning {
		b.AddMessage(errors.NewMessage(errors.ScannerError,
			"scanners may not register other scanners").WithSource(b.newSource()))
		return
	}
	b.state.scanners = append(b.state.scanners, s)
	b.append(&ScannerRegistration{baseElement: baseElement{source: b.newSource()}, Scanner: s})
}

func (b *recordingBinder) RestrictQualifier(name string, r Restriction) {
	b.append(&RestrictionElement{
		baseElement:   baseElement{source: b.newSource()},
		QualifierName: name,
		Restriction:   r,
	})
}

func (b *recordingBinder) RestrictType(t TypeLiteral, r Restriction) {
	b.append(&RestrictionElement{
		baseElement: baseElement{source: b.newSource()},
		Type:        t,
		Restriction: r,
	})
}

func (b *recordingBinder) CurrentStage() Stage {
	return b.state.stage
}

// runScanners executes each scanner at most once per installed module. A
// module that a scanner installs while scanning is scanned by that scanner
// and the ones after it; scanners earlier in the order do not scan it. Methods are
// claimed by the first matching scanner; the built-in provider method
// scanner runs last so custom scanners take precedence.
func (b *recordingBinder) runScanners() {
	b.state.scanning = true
	defer func() { b.state.scanning = false }()

	scanners := append(append([]ModuleScanner(nil), b.state.scanners...), providerMethodScanner{})
	claimed := make(map[int]map[string]bool)
	for si, scanner := range scanners {
		if b.state.scanned[si] == nil {
			b.state.scanned[si] = make(map[int]bool)
		}
		for ti := 0; ti < len(b.state.toScan); ti++ {
			if b.state.scanned[si][ti] {
				continue
			}
			b.state.scanned[si][ti] = true
			if claimed[ti] == nil {
				claimed[ti] = make(map[string]bool)
			}
			target := b.state.toScan[ti]
			scanProviderMethods(target.binder, scanner, target.module, claimed[ti])
		}
	}
}

// privateBinder records into a private environment and additionally
// collects exposure edges.
type privateBinder struct {
	*recordingBinder
}

func (b *privateBinder) Expose(k Key) {
	b.privateEnv.Exposed = append(b.privateEnv.Exposed, Exposure{
		Key:    k,
		Source: b.newSource(),
	})
}
