package wisp

import (
	"fmt"
	"reflect"

	"github.com/calummacc/wisp/errors"
	"github.com/calummacc/wisp/matcher"
	"go.uber.org/zap"
)

// compileShared is the state one compilation run threads through the
// whole injector tree: the collected messages, the permit map, and the
// restrictions declared anywhere in the stream. Errors are accumulated,
// never thrown one at a time; compilation continues past failures so a
// single CreationError can report everything.
type compileShared struct {
	stage        Stage
	logger       *zap.Logger
	permits      *PermitMap
	restrictions *restrictionRegistry
	msgs         []*errors.Message
}

func (s *compileShared) addMessage(m *errors.Message) {
	s.msgs = append(s.msgs, m)
}

// addError folds a runtime error into the message list, flattening
// provision and creation errors so their messages merge.
func (s *compileShared) addError(err error, source *ElementSource) {
	switch e := err.(type) {
	case *errors.ProvisionError:
		s.msgs = append(s.msgs, e.Messages...)
	case *errors.CreationError:
		s.msgs = append(s.msgs, e.Messages...)
	case *errors.Message:
		s.msgs = append(s.msgs, e)
	default:
		s.msgs = append(s.msgs, errors.NewMessage(errors.InjectionFailed, "%v", err).WithSource(source))
	}
}

// qualifierForm tracks how a qualifier name has been used with a type.
type qualifierForm struct {
	marker bool
	valued bool
}

type qualifierUse struct {
	t    reflect.Type
	name string
}

// compiler turns one environment's element stream into an injector. A
// private environment compiles through a child compiler whose injector's
// parent is this one.
type compiler struct {
	shared *compileShared
	inj    *Injector

	children          []*compiler
	bindingElems      []*BindingElement
	pendingInstances  []pendingInjection
	injectionRequests []*InjectionRequest
	staticRequests    []*StaticInjectionRequest
	providerLookups   []*ProviderLookup
	miLookups         []*MembersInjectorLookup
	qualifierForms    map[qualifierUse]*qualifierForm
}

// pendingInjection is an instance awaiting members injection at creation.
type pendingInjection struct {
	instance any
	source   *ElementSource
}

// compile builds an injector from an element stream. All configuration
// problems are collected and returned as a single *errors.CreationError;
// the injector is either fully created or discarded.
func compile(parent *Injector, stage Stage, logger *zap.Logger, elements []Element, permits *PermitMap) (*Injector, error) {
	shared := &compileShared{
		stage:        stage,
		logger:       logger,
		permits:      permits,
		restrictions: newRestrictionRegistry(),
	}
	root := newCompiler(parent, shared)
	root.register(elements)
	root.validate()
	root.finalize()
	if len(shared.msgs) > 0 {
		return nil, errors.NewCreationError(shared.msgs)
	}
	logger.Debug("injector created",
		zap.Stringer("stage", stage),
		zap.Int("bindings", len(root.inj.bindings)))
	return root.inj, nil
}

func newCompiler(parent *Injector, shared *compileShared) *compiler {
	inj := &Injector{
		parent:       parent,
		stage:        shared.stage,
		logger:       shared.logger,
		bindings:     make(map[Key]*Binding),
		jit:          make(map[Key]*Binding),
		scopes:       make(map[string]Scope),
		extraMembers: make(map[reflect.Type][]MembersInjector),
	}
	if parent != nil {
		inj.opts = parent.opts
	}
	c := &compiler{
		shared:         shared,
		inj:            inj,
		qualifierForms: make(map[qualifierUse]*qualifierForm),
	}
	c.seed()
	return c
}

// seed installs the built-in bindings every injector carries: itself, the
// logger and the stage. The root additionally registers the singleton
// scope and the standard type converters. Seed bindings are overridable:
// an explicit module binding for the logger replaces the seed rather than
// colliding with it.
func (c *compiler) seed() {
	c.addSeedBinding(KeyOf[*Injector](), c.inj)
	c.addSeedBinding(KeyOf[*zap.Logger](), c.shared.logger)
	c.addSeedBinding(KeyOf[Stage](), c.shared.stage)
	if c.inj.parent == nil {
		c.inj.scopes[SingletonScopeName] = SingletonScope
		c.inj.converters = defaultConverterEntries()
	}
}

func (c *compiler) addSeedBinding(key Key, value any) {
	b := &Binding{
		key:         key,
		source:      syntheticSource("builtin binding"),
		target:      &InstanceTarget{Value: value},
		injector:    c.inj,
		factory:     instanceFactory(value),
		overridable: true,
	}
	c.inj.bindings[key] = b
	c.inj.order = append(c.inj.order, key)
}

// register walks the element stream in order; the compiler is the element
// visitor.
func (c *compiler) register(elements []Element) {
	for _, e := range elements {
		e.Accept(c)
	}
}

// forbiddenBindingKey rejects bindings for the container's own types.
func (c *compiler) forbiddenBindingKey(key Key) bool {
	t := key.Type()
	return t == reflect.TypeOf((*Injector)(nil)) || t == reflect.TypeOf(Development)
}

func (c *compiler) VisitBinding(e *BindingElement) any {
	key := e.Key
	if !key.IsValid() {
		c.shared.addMessage(errors.NewMessage(errors.InternalError, "binding with invalid key").
			WithSource(e.Source()))
		return nil
	}
	if c.forbiddenBindingKey(key) {
		c.shared.addMessage(errors.NewMessage(errors.BindingAlreadySet,
			"%s is bound by the framework and may not be rebound", key).WithSource(e.Source()))
		return nil
	}
	if q, ok := key.Qualifier(); ok {
		use := qualifierUse{t: key.Type(), name: q.Name()}
		form := c.qualifierForms[use]
		if form == nil {
			form = &qualifierForm{}
			c.qualifierForms[use] = form
		}
		if q.IsMarker() {
			form.marker = true
		} else {
			form.valued = true
		}
	}

	b := c.buildBinding(e)
	if b == nil {
		return nil
	}
	c.addBinding(b, e.Source())
	c.bindingElems = append(c.bindingElems, e)
	return nil
}

// buildBinding compiles a binding element's target into a factory.
func (c *compiler) buildBinding(e *BindingElement) *Binding {
	b := &Binding{
		key:      e.Key,
		source:   e.Source(),
		scoping:  e.Scoping,
		target:   e.Target,
		injector: c.inj,
	}
	switch t := e.Target.(type) {
	case *InstanceTarget:
		if !reflect.TypeOf(t.Value).AssignableTo(e.Key.Type()) {
			c.shared.addMessage(errors.NewMessage(errors.MalformedInjectionPoint,
				"instance of type %T is not assignable to %s", t.Value, e.Key).WithSource(e.Source()))
			return nil
		}
		b.factory = instanceFactory(t.Value)
		c.pendingInstances = append(c.pendingInstances, pendingInjection{instance: t.Value, source: e.Source()})
	case *ProviderInstanceTarget:
		b.factory = providerInstanceFactory(c.inj, e.Key, t.Provider)
		c.pendingInstances = append(c.pendingInstances, pendingInjection{instance: t.Provider, source: e.Source()})
	case *LinkedKeyTarget:
		b.factory = linkedFactory(c.inj, t.Target)
	case *ProviderKeyTarget:
		b.factory = providerKeyFactory(c.inj, e.Key, t.ProviderKey)
	case *ConstructorTarget:
		resultType := t.Point.fn.Type().Out(0)
		if !resultType.AssignableTo(e.Key.Type()) && !resultType.ConvertibleTo(e.Key.Type()) {
			c.shared.addMessage(errors.NewMessage(errors.MalformedInjectionPoint,
				"constructor returns %v, not assignable to %s", resultType, e.Key).WithSource(e.Source()))
			return nil
		}
		b.factory = constructorFactory(c.inj, e.Key, t.Point)
	case *ConvertedConstantTarget:
		b.factory = convertedFactory(t.Value)
	case *UntargettedTarget:
		if _, ok := e.Key.TypeLiteral().concrete(); !ok {
			c.shared.addMessage(errors.NewMessage(errors.MissingConstructor,
				"%s is bound to itself but is not a constructable type", e.Key).WithSource(e.Source()))
			return nil
		}
		b.factory = structFactory(c.inj, e.Key)
	default:
		c.shared.addMessage(errors.NewMessage(errors.InternalError,
			"unsupported binding target %T for %s", e.Target, e.Key).WithSource(e.Source()))
		return nil
	}
	return b
}

// addBinding inserts a compiled binding, enforcing the duplicate rule:
// two explicit bindings for one key collide, while seed bindings and
// private-environment exposures are replaced by whichever binding comes
// later in the stream.
func (c *compiler) addBinding(b *Binding, source *ElementSource) {
	old, exists := c.inj.bindings[b.key]
	if !exists {
		c.inj.bindings[b.key] = b
		c.inj.order = append(c.inj.order, b.key)
		return
	}
	if old.overridable || b.overridable {
		c.inj.bindings[b.key] = b
		return
	}
	c.shared.addMessage(errors.NewMessage(errors.BindingAlreadySet,
		"a binding for %s already exists", b.key).
		WithSource(old.source).WithSource(source))
}

func (c *compiler) VisitScopeRegistration(e *ScopeRegistration) any {
	if e.Scope == nil || e.Name == "" {
		c.shared.addMessage(errors.NewMessage(errors.ScopeNotFound,
			"scope registrations require a name and an implementation").WithSource(e.Source()))
		return nil
	}
	if _, exists := c.inj.resolveScope(e.Name); exists {
		c.shared.addMessage(errors.NewMessage(errors.ScopeAlreadySet,
			"a scope named %q is already registered", e.Name).WithSource(e.Source()))
		return nil
	}
	c.inj.scopes[e.Name] = e.Scope
	return nil
}

func (c *compiler) VisitTypeConverterRegistration(e *TypeConverterRegistration) any {
	c.inj.converters = append(c.inj.converters, converterEntry{
		matcher:   e.Matcher,
		converter: e.Converter,
		source:    e.Source(),
	})
	return nil
}

func (c *compiler) VisitInterceptorRegistration(e *InterceptorRegistration) any {
	c.inj.interceptors = append(c.inj.interceptors, interceptorEntry{
		classMatcher:  e.ClassMatcher,
		methodMatcher: e.MethodMatcher,
		interceptors:  e.Interceptors,
		source:        e.Source(),
	})
	return nil
}

func (c *compiler) VisitInjectionRequest(e *InjectionRequest) any {
	c.injectionRequests = append(c.injectionRequests, e)
	return nil
}

func (c *compiler) VisitStaticInjectionRequest(e *StaticInjectionRequest) any {
	c.staticRequests = append(c.staticRequests, e)
	return nil
}

func (c *compiler) VisitProviderLookup(e *ProviderLookup) any {
	c.providerLookups = append(c.providerLookups, e)
	return nil
}

func (c *compiler) VisitMembersInjectorLookup(e *MembersInjectorLookup) any {
	c.miLookups = append(c.miLookups, e)
	return nil
}

func (c *compiler) VisitTypeListenerRegistration(e *TypeListenerRegistration) any {
	c.inj.typeListeners = append(c.inj.typeListeners, typeListenerEntry{
		matcher:  e.Matcher,
		listener: e.Listener,
		source:   e.Source(),
	})
	return nil
}

func (c *compiler) VisitProvisionListenerRegistration(e *ProvisionListenerRegistration) any {
	c.inj.provisionListeners = append(c.inj.provisionListeners, provisionListenerEntry{
		matcher:   e.Matcher,
		listeners: e.Listeners,
		source:    e.Source(),
	})
	return nil
}

func (c *compiler) VisitMessage(e *MessageElement) any {
	c.shared.addMessage(e.Message)
	return nil
}

func (c *compiler) VisitPrivateEnvironment(e *PrivateEnvironment) any {
	child := newCompiler(c.inj, c.shared)
	child.register(e.Elements)
	c.children = append(c.children, child)

	for _, exp := range e.Exposed {
		if _, ok := child.inj.bindings[exp.Key]; !ok {
			c.shared.addMessage(errors.NewMessage(errors.ExposedButNotBound,
				"%s is exposed but not bound in the private environment", exp.Key).
				WithSource(exp.Source))
			continue
		}
		c.addBinding(&Binding{
			key:         exp.Key,
			source:      exp.Source,
			target:      &ExposedTarget{Env: e, Key: exp.Key},
			injector:    c.inj,
			factory:     exposedFactory(child.inj, exp.Key),
			overridable: true,
		}, exp.Source)
	}
	return nil
}

func (c *compiler) VisitOption(e *OptionElement) any {
	switch e.Flag {
	case RequireExplicitBindingsFlag:
		c.inj.opts.requireExplicitBindings = true
	case DisableCircularProxiesFlag:
		c.inj.opts.disableCircularProxies = true
	case RequireInjectedConstructorsFlag:
		c.inj.opts.requireInjectedConstructors = true
	case RequireExactBindingQualifiersFlag:
		c.inj.opts.requireExactBindingQualifiers = true
	}
	return nil
}

func (c *compiler) VisitScannerRegistration(e *ScannerRegistration) any {
	// Scanners act during recording; nothing to compile.
	return nil
}

func (c *compiler) VisitRestriction(e *RestrictionElement) any {
	if e.QualifierName != "" {
		c.shared.restrictions.addQualifier(e.QualifierName, e.Restriction, e.Source())
	} else if e.Type.IsValid() {
		c.shared.restrictions.addType(e.Type, e.Restriction, e.Source())
	}
	return nil
}

// validate runs after registration: scoping resolution, the qualifier
// form check, the restriction check, dependency satisfiability, and type
// listeners. Private environments validate before their parent.
func (c *compiler) validate() {
	for _, child := range c.children {
		child.validate()
	}

	for use, form := range c.qualifierForms {
		if form.marker && form.valued {
			c.shared.addMessage(errors.NewMessage(errors.QualifierFormConflict,
				"qualifier %q used both as a marker and with values for %v", use.name, use.t))
		}
	}

	for _, key := range c.inj.order {
		b := c.inj.bindings[key]
		c.resolveScoping(b)
		if _, isExposed := b.target.(*ExposedTarget); isExposed {
			continue
		}
		if !b.overridable {
			if r, ok := c.shared.restrictions.restrictionFor(b.key); ok {
				if m := checkRestriction(b.key, b.source, r, c.shared.permits, c.shared.logger); m != nil {
					c.shared.addMessage(m)
				}
			}
		}
		if b.overridable {
			// Seed values are never members-injected, so their members
			// are not dependencies to satisfy.
			continue
		}
		for _, d := range b.Dependencies() {
			if d.Optional() {
				continue
			}
			c.checkSatisfiable(d, b)
		}
	}

	c.runTypeListeners()
}

// resolveScoping turns a binding's requested scoping into a singleton
// cell or a scope instance.
func (c *compiler) resolveScoping(b *Binding) {
	switch b.scoping.kind {
	case scopingUnscoped:
	case scopingEager:
		b.cell = &singletonCell{}
	case scopingNamed:
		s, ok := c.inj.resolveScope(b.scoping.name)
		if !ok {
			c.shared.addMessage(errors.NewMessage(errors.ScopeNotFound,
				"no scope named %q for %s", b.scoping.name, b.key).WithSource(b.source))
			return
		}
		c.applyScope(b, s)
	case scopingInstance:
		c.applyScope(b, b.scoping.scope)
	}
}

func (c *compiler) applyScope(b *Binding, s Scope) {
	if _, ok := s.(singletonScope); ok {
		b.cell = &singletonCell{}
		return
	}
	b.customScope = s
}

// checkSatisfiable verifies that a dependency either has an explicit
// binding or can be created just in time under the active options.
func (c *compiler) checkSatisfiable(d Dependency, by *Binding) {
	key := d.Key()
	for inj := c.inj; inj != nil; inj = inj.parent {
		if _, ok := inj.bindings[key]; ok {
			return
		}
	}
	t := key.Type()
	if _, ok := providerShape(t); ok {
		return
	}
	if _, ok := membersInjectorShape(t); ok {
		return
	}
	if c.inj.opts.requireExplicitBindings {
		c.shared.addMessage(errors.NewMessage(errors.JitDisabled,
			"explicit bindings are required and %s is not bound (required by %s)", key, by.key).
			WithSource(by.source))
		return
	}
	if q, ok := key.Qualifier(); ok {
		if q.IsMarker() && !c.inj.opts.requireExactBindingQualifiers {
			unqualified := key.WithoutQualifier()
			for inj := c.inj; inj != nil; inj = inj.parent {
				if _, ok := inj.bindings[unqualified]; ok {
					return
				}
			}
		}
		sourceKey := NewQualifiedKey(TypeOf[string](), q)
		for inj := c.inj; inj != nil; inj = inj.parent {
			if _, ok := inj.bindings[sourceKey]; ok {
				if c.inj.findConverter(key.TypeLiteral()) != nil {
					return
				}
			}
		}
		c.shared.addMessage(errors.NewMessage(errors.MissingBinding,
			"no binding for %s (required by %s)", key, by.key).WithSource(by.source))
		return
	}
	if _, ok := key.TypeLiteral().concrete(); ok {
		points, err := membersInjectionPoints(key.TypeLiteral())
		if err != nil {
			c.shared.addMessage(errors.NewMessage(errors.MalformedInjectionPoint,
				"%s cannot be constructed: %v", key, err).WithSource(by.source))
			return
		}
		if c.inj.opts.requireInjectedConstructors && len(points) == 0 {
			c.shared.addMessage(errors.NewMessage(errors.MissingConstructor,
				"%s has no injectable members (required by %s)", key, by.key).WithSource(by.source))
		}
		return
	}
	c.shared.addMessage(errors.NewMessage(errors.MissingBinding,
		"no binding for %s (required by %s)", key, by.key).WithSource(by.source))
}

// runTypeListeners notifies matching listeners of every type this
// environment constructs.
func (c *compiler) runTypeListeners() {
	heard := make(map[TypeLiteral]bool)
	var order []TypeLiteral
	for _, e := range c.bindingElems {
		var t TypeLiteral
		switch target := e.Target.(type) {
		case *UntargettedTarget:
			t = e.Key.TypeLiteral()
		case *ConstructorTarget:
			t = TypeLiteralOf(target.Point.fn.Type().Out(0))
		case *InstanceTarget:
			t = typeLiteralFor(target.Value)
		default:
			continue
		}
		if !heard[t] {
			heard[t] = true
			order = append(order, t)
		}
	}

	var chain []*Injector
	for inj := c.inj; inj != nil; inj = inj.parent {
		chain = append(chain, inj)
	}
	var entries []typeListenerEntry
	for n := len(chain) - 1; n >= 0; n-- {
		entries = append(entries, chain[n].typeListeners...)
	}
	for _, t := range order {
		for _, entry := range entries {
			if !entry.matcher.Matches(t) {
				continue
			}
			c.hearSafely(entry, t)
		}
	}
}

// hearSafely shields compilation from panics in listener code.
func (c *compiler) hearSafely(entry typeListenerEntry, t TypeLiteral) {
	defer func() {
		if r := recover(); r != nil {
			c.shared.addMessage(errors.NewMessage(errors.InjectionFailed,
				"type listener failed hearing %s: %v", t, r).WithSource(entry.source))
		}
	}()
	entry.listener.Hear(t, &typeEncounter{compiler: c, heard: t, source: entry.source})
}

// finalize initialises recorded lookups and, outside the tool stage,
// performs creation-time work: members injection of bound instances,
// injection requests, static injection, and eager singletons. Private
// environments finalize before their parent.
func (c *compiler) finalize() {
	for _, child := range c.children {
		child.finalize()
	}

	for _, lookup := range c.providerLookups {
		if lookup.delegate == nil {
			key := lookup.Dependency.Key()
			inj := c.inj
			lookup.delegate = ProviderFunc(func() (any, error) {
				return inj.GetInstance(key)
			})
		}
	}
	for _, lookup := range c.miLookups {
		if lookup.delegate == nil {
			inj := c.inj
			lookup.delegate = membersInjectorFunc(func(instance any) error {
				return inj.InjectMembers(instance)
			})
		}
	}

	if c.shared.stage == Tool {
		return
	}

	for _, p := range c.pendingInstances {
		if err := c.inj.InjectMembers(p.instance); err != nil {
			c.shared.addError(err, p.source)
		}
	}
	for _, req := range c.injectionRequests {
		if err := c.inj.InjectMembers(req.Instance); err != nil {
			c.shared.addError(err, req.Source())
		}
	}
	for _, req := range c.staticRequests {
		if err := c.inj.fillStaticTargets(req.Targets); err != nil {
			c.shared.addError(err, req.Source())
		}
	}

	for _, key := range c.inj.order {
		b := c.inj.bindings[key]
		if b.cell == nil {
			continue
		}
		if c.shared.stage == Production || b.scoping.IsEager() {
			if _, err := c.inj.GetInstance(key); err != nil {
				c.shared.addError(err, b.source)
			}
		}
	}
}

// typeEncounter is the TypeEncounter handed to type listeners.
type typeEncounter struct {
	compiler *compiler
	heard    TypeLiteral
	source   *ElementSource
}

func (e *typeEncounter) AddError(format string, args ...any) {
	e.compiler.shared.addMessage(errors.NewMessage(errors.ModuleError,
		"type listener for %s: %s", e.heard, fmt.Sprintf(format, args...)).WithSource(e.source))
}

func (e *typeEncounter) Register(mi MembersInjector) {
	t := e.heard.Type()
	e.compiler.inj.extraMembers[t] = append(e.compiler.inj.extraMembers[t], mi)
}

func (e *typeEncounter) GetProvider(k Key) Provider {
	inj := e.compiler.inj
	return ProviderFunc(func() (any, error) {
		return inj.GetInstance(k)
	})
}

func (e *typeEncounter) BindInterceptor(mm matcher.Matcher[string], is ...MethodInterceptor) {
	e.compiler.inj.interceptors = append(e.compiler.inj.interceptors, interceptorEntry{
		classMatcher:  matcher.Only(e.heard),
		methodMatcher: mm,
		interceptors:  is,
		source:        e.source,
	})
}
