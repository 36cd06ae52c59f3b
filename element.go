package wisp

import (
	"github.com/calummacc/wisp/errors"
	"github.com/calummacc/wisp/matcher"
)

// Element is one immutable record of a configuration action performed by
// a module. The set of element kinds is closed: tools switch over them
// with an ElementVisitor, and an element stream can be replayed into a
// fresh binder with ApplyTo.
type Element interface {
	// Source identifies where the element was recorded.
	Source() *ElementSource
	// Accept dispatches to the visitor method for this element's kind.
	Accept(v ElementVisitor) any
	// ApplyTo replays the element against a binder.
	ApplyTo(b Binder)

	element()
}

// ElementVisitor visits each kind of configuration element.
type ElementVisitor interface {
	VisitBinding(e *BindingElement) any
	VisitScopeRegistration(e *ScopeRegistration) any
	VisitTypeConverterRegistration(e *TypeConverterRegistration) any
	VisitInterceptorRegistration(e *InterceptorRegistration) any
	VisitInjectionRequest(e *InjectionRequest) any
	VisitStaticInjectionRequest(e *StaticInjectionRequest) any
	VisitProviderLookup(e *ProviderLookup) any
	VisitMembersInjectorLookup(e *MembersInjectorLookup) any
	VisitTypeListenerRegistration(e *TypeListenerRegistration) any
	VisitProvisionListenerRegistration(e *ProvisionListenerRegistration) any
	VisitMessage(e *MessageElement) any
	VisitPrivateEnvironment(e *PrivateEnvironment) any
	VisitOption(e *OptionElement) any
	VisitScannerRegistration(e *ScannerRegistration) any
	VisitRestriction(e *RestrictionElement) any
}

// DefaultElementVisitor implements ElementVisitor with a single fallback,
// letting tools override only the kinds they care about by embedding it.
type DefaultElementVisitor struct {
	// Default is invoked for every element kind not overridden.
	Default func(e Element) any
}

func (v DefaultElementVisitor) visitDefault(e Element) any {
	if v.Default != nil {
		return v.Default(e)
	}
	return nil
}

func (v DefaultElementVisitor) VisitBinding(e *BindingElement) any { return v.visitDefault(e) }
func (v DefaultElementVisitor) VisitScopeRegistration(e *ScopeRegistration) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitTypeConverterRegistration(e *TypeConverterRegistration) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitInterceptorRegistration(e *InterceptorRegistration) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitInjectionRequest(e *InjectionRequest) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitStaticInjectionRequest(e *StaticInjectionRequest) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitProviderLookup(e *ProviderLookup) any { return v.visitDefault(e) }
func (v DefaultElementVisitor) VisitMembersInjectorLookup(e *MembersInjectorLookup) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitTypeListenerRegistration(e *TypeListenerRegistration) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitProvisionListenerRegistration(e *ProvisionListenerRegistration) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitMessage(e *MessageElement) any { return v.visitDefault(e) }
func (v DefaultElementVisitor) VisitPrivateEnvironment(e *PrivateEnvironment) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitOption(e *OptionElement) any { return v.visitDefault(e) }
func (v DefaultElementVisitor) VisitScannerRegistration(e *ScannerRegistration) any {
	return v.visitDefault(e)
}
func (v DefaultElementVisitor) VisitRestriction(e *RestrictionElement) any { return v.visitDefault(e) }

// baseElement carries the source common to every element kind.
type baseElement struct {
	source *ElementSource
}

func (e *baseElement) Source() *ElementSource { return e.source }
func (e *baseElement) element()               {}

// BindingTarget is the recipe half of a recorded binding: what the key
// should resolve to. The set of targets is closed.
type BindingTarget interface {
	// AcceptTarget dispatches to the visitor method for this target kind.
	AcceptTarget(v BindingTargetVisitor) any

	target()
}

// BindingTargetVisitor visits each kind of binding target.
type BindingTargetVisitor interface {
	VisitInstance(t *InstanceTarget) any
	VisitProviderInstance(t *ProviderInstanceTarget) any
	VisitProviderKey(t *ProviderKeyTarget) any
	VisitLinkedKey(t *LinkedKeyTarget) any
	VisitUntargetted(t *UntargettedTarget) any
	VisitConstructor(t *ConstructorTarget) any
	VisitConvertedConstant(t *ConvertedConstantTarget) any
	VisitProviderBinding(t *ProviderBindingTarget) any
	VisitExposed(t *ExposedTarget) any
}

// InstanceTarget binds a key to a pre-constructed value. The value
// receives members injection once, at injector creation.
type InstanceTarget struct {
	Value any
}

func (t *InstanceTarget) AcceptTarget(v BindingTargetVisitor) any { return v.VisitInstance(t) }
func (t *InstanceTarget) target()                                 {}

// ProviderInstanceTarget binds a key to a user-supplied provider.
type ProviderInstanceTarget struct {
	Provider Provider
}

func (t *ProviderInstanceTarget) AcceptTarget(v BindingTargetVisitor) any {
	return v.VisitProviderInstance(t)
}
func (t *ProviderInstanceTarget) target() {}

// ProviderKeyTarget binds a key to another key whose instances are
// Providers for it.
type ProviderKeyTarget struct {
	ProviderKey Key
}

func (t *ProviderKeyTarget) AcceptTarget(v BindingTargetVisitor) any { return v.VisitProviderKey(t) }
func (t *ProviderKeyTarget) target()                                 {}

// LinkedKeyTarget binds a key to another key; provisioning delegates.
type LinkedKeyTarget struct {
	Target Key
}

func (t *LinkedKeyTarget) AcceptTarget(v BindingTargetVisitor) any { return v.VisitLinkedKey(t) }
func (t *LinkedKeyTarget) target()                                 {}

// UntargettedTarget binds a concrete type to itself; the injector builds
// instances by allocating the type and injecting its members.
type UntargettedTarget struct{}

func (t *UntargettedTarget) AcceptTarget(v BindingTargetVisitor) any { return v.VisitUntargetted(t) }
func (t *UntargettedTarget) target()                                 {}

// ConstructorTarget binds a key to a constructor function.
type ConstructorTarget struct {
	Point *InjectionPoint
}

func (t *ConstructorTarget) AcceptTarget(v BindingTargetVisitor) any { return v.VisitConstructor(t) }
func (t *ConstructorTarget) target()                                 {}

// ConvertedConstantTarget records a constant produced by applying a type
// converter to a bound string constant.
type ConvertedConstantTarget struct {
	SourceKey Key
	Value     any
	Converter TypeConverter
}

func (t *ConvertedConstantTarget) AcceptTarget(v BindingTargetVisitor) any {
	return v.VisitConvertedConstant(t)
}
func (t *ConvertedConstantTarget) target() {}

// ProviderBindingTarget is the synthetic binding behind Provider lookups:
// the bound value is a Provider for ProvidedKey.
type ProviderBindingTarget struct {
	ProvidedKey Key
}

func (t *ProviderBindingTarget) AcceptTarget(v BindingTargetVisitor) any {
	return v.VisitProviderBinding(t)
}
func (t *ProviderBindingTarget) target() {}

// ExposedTarget makes a private environment's binding visible to its
// parent.
type ExposedTarget struct {
	Env *PrivateEnvironment
	Key Key
}

func (t *ExposedTarget) AcceptTarget(v BindingTargetVisitor) any { return v.VisitExposed(t) }
func (t *ExposedTarget) target()                                 {}

// BindingElement records one binding: a key, a target and a scoping.
type BindingElement struct {
	baseElement
	Key     Key
	Target  BindingTarget
	Scoping Scoping
}

func (e *BindingElement) Accept(v ElementVisitor) any { return v.VisitBinding(e) }

// ApplyTo replays the binding against a binder.
func (e *BindingElement) ApplyTo(b Binder) {
	bb := b.BindKey(e.Key)
	switch t := e.Target.(type) {
	case *InstanceTarget:
		bb.ToInstance(t.Value)
	case *ProviderInstanceTarget:
		bb.ToProvider(t.Provider)
	case *ProviderKeyTarget:
		bb.ToProviderKey(t.ProviderKey)
	case *LinkedKeyTarget:
		bb.ToKey(t.Target)
	case *ConstructorTarget:
		bb.toPoint(t.Point)
	case *UntargettedTarget:
		// Untargetted; the key binds to itself.
	}
	bb.in(e.Scoping)
}

// ScopeRegistration records a scope implementation under a name.
type ScopeRegistration struct {
	baseElement
	Name  string
	Scope Scope
}

func (e *ScopeRegistration) Accept(v ElementVisitor) any { return v.VisitScopeRegistration(e) }
func (e *ScopeRegistration) ApplyTo(b Binder)            { b.BindScope(e.Name, e.Scope) }

// TypeConverterRegistration records a converter for matching types.
type TypeConverterRegistration struct {
	baseElement
	Matcher   matcher.Matcher[TypeLiteral]
	Converter TypeConverter
}

func (e *TypeConverterRegistration) Accept(v ElementVisitor) any {
	return v.VisitTypeConverterRegistration(e)
}
func (e *TypeConverterRegistration) ApplyTo(b Binder) { b.ConvertToTypes(e.Matcher, e.Converter) }

// InterceptorRegistration records method interceptors for matching types
// and methods.
type InterceptorRegistration struct {
	baseElement
	ClassMatcher  matcher.Matcher[TypeLiteral]
	MethodMatcher matcher.Matcher[string]
	Interceptors  []MethodInterceptor
}

func (e *InterceptorRegistration) Accept(v ElementVisitor) any {
	return v.VisitInterceptorRegistration(e)
}
func (e *InterceptorRegistration) ApplyTo(b Binder) {
	b.BindInterceptor(e.ClassMatcher, e.MethodMatcher, e.Interceptors...)
}

// InjectionRequest asks the injector to inject an existing instance's
// members at creation time.
type InjectionRequest struct {
	baseElement
	Type     TypeLiteral
	Instance any
}

func (e *InjectionRequest) Accept(v ElementVisitor) any { return v.VisitInjectionRequest(e) }
func (e *InjectionRequest) ApplyTo(b Binder)            { b.RequestInjection(e.Instance) }

// StaticInjectionRequest asks the injector to fill caller-supplied
// pointers (typically package-level variables) at creation time, in
// request order.
type StaticInjectionRequest struct {
	baseElement
	Targets []any
}

func (e *StaticInjectionRequest) Accept(v ElementVisitor) any {
	return v.VisitStaticInjectionRequest(e)
}
func (e *StaticInjectionRequest) ApplyTo(b Binder) { b.RequestStaticInjection(e.Targets...) }

// ProviderLookup is a recorded request for a provider usable after the
// injector is created. Its delegate starts nil and is set exactly once
// when the element is processed.
type ProviderLookup struct {
	baseElement
	Dependency Dependency

	delegate Provider
}

func (e *ProviderLookup) Accept(v ElementVisitor) any { return v.VisitProviderLookup(e) }

// ApplyTo replays the lookup; the new binder's lookup feeds this
// element's delegate so earlier handles keep working.
func (e *ProviderLookup) ApplyTo(b Binder) {
	p := b.GetProvider(e.Dependency.Key())
	if e.delegate == nil {
		e.delegate = p
	}
}

// SetDelegate initialises the lookup. Setting it twice is a programmer
// error.
func (e *ProviderLookup) SetDelegate(p Provider) {
	if e.delegate != nil {
		panic(errors.NewConfigurationError("provider lookup for %s already initialized", e.Dependency.Key()))
	}
	e.delegate = p
}

// Provider returns a handle that delegates to the initialised lookup.
// Calling Get before the injector is created returns an error.
func (e *ProviderLookup) Provider() Provider {
	return ProviderFunc(func() (any, error) {
		if e.delegate == nil {
			return nil, errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
				"provider for %s used before the injector was created", e.Dependency.Key()))
		}
		return e.delegate.Get()
	})
}

// MembersInjectorLookup is a recorded request for a members injector
// usable after the injector is created.
type MembersInjectorLookup struct {
	baseElement
	Type TypeLiteral

	delegate MembersInjector
}

func (e *MembersInjectorLookup) Accept(v ElementVisitor) any { return v.VisitMembersInjectorLookup(e) }

// ApplyTo replays the lookup into a fresh binder.
func (e *MembersInjectorLookup) ApplyTo(b Binder) {
	mi := b.GetMembersInjector(e.Type)
	if e.delegate == nil {
		e.delegate = mi
	}
}

// SetDelegate initialises the lookup. Setting it twice is a programmer
// error.
func (e *MembersInjectorLookup) SetDelegate(mi MembersInjector) {
	if e.delegate != nil {
		panic(errors.NewConfigurationError("members injector lookup for %s already initialized", e.Type))
	}
	e.delegate = mi
}

// MembersInjector returns a handle that delegates to the initialised
// lookup.
func (e *MembersInjectorLookup) MembersInjector() MembersInjector {
	return membersInjectorFunc(func(instance any) error {
		if e.delegate == nil {
			return errors.NewProvisionError(errors.NewMessage(errors.InjectionFailed,
				"members injector for %s used before the injector was created", e.Type))
		}
		return e.delegate.InjectMembers(instance)
	})
}

// TypeListenerRegistration records a listener over matching types.
type TypeListenerRegistration struct {
	baseElement
	Matcher  matcher.Matcher[TypeLiteral]
	Listener TypeListener
}

func (e *TypeListenerRegistration) Accept(v ElementVisitor) any {
	return v.VisitTypeListenerRegistration(e)
}
func (e *TypeListenerRegistration) ApplyTo(b Binder) { b.BindTypeListener(e.Matcher, e.Listener) }

// ProvisionListenerRegistration records listeners over matching bindings.
type ProvisionListenerRegistration struct {
	baseElement
	Matcher   matcher.Matcher[Key]
	Listeners []ProvisionListener
}

func (e *ProvisionListenerRegistration) Accept(v ElementVisitor) any {
	return v.VisitProvisionListenerRegistration(e)
}
func (e *ProvisionListenerRegistration) ApplyTo(b Binder) {
	b.BindProvisionListener(e.Matcher, e.Listeners...)
}

// MessageElement carries a pre-recorded error through the element stream.
type MessageElement struct {
	baseElement
	Message *errors.Message
}

func (e *MessageElement) Accept(v ElementVisitor) any { return v.VisitMessage(e) }
func (e *MessageElement) ApplyTo(b Binder)            { b.AddMessage(e.Message) }

// PrivateEnvironment is a nested element list with its own bindings,
// exporting only the exposed keys to the enclosing environment.
type PrivateEnvironment struct {
	baseElement
	Elements []Element
	Exposed  []Exposure
}

// Exposure is one exported key of a private environment.
type Exposure struct {
	Key    Key
	Source *ElementSource
}

func (e *PrivateEnvironment) Accept(v ElementVisitor) any { return v.VisitPrivateEnvironment(e) }

// ApplyTo replays the whole environment into a fresh private binder.
func (e *PrivateEnvironment) ApplyTo(b Binder) {
	pb := b.NewPrivateBinder()
	for _, child := range e.Elements {
		child.ApplyTo(pb)
	}
	for _, exp := range e.Exposed {
		pb.Expose(exp.Key)
	}
}

// OptionFlag toggles a container-wide policy.
type OptionFlag int

const (
	// RequireExplicitBindingsFlag forbids just-in-time bindings.
	RequireExplicitBindingsFlag OptionFlag = iota
	// DisableCircularProxiesFlag makes every circular reference fatal.
	DisableCircularProxiesFlag
	// RequireInjectedConstructorsFlag restricts just-in-time construction
	// to types with registered constructors or inject-tagged fields.
	RequireInjectedConstructorsFlag
	// RequireExactBindingQualifiersFlag forbids falling back to the
	// unqualified key when a marker-qualified key has no binding.
	RequireExactBindingQualifiersFlag
)

// OptionElement records a policy toggle.
type OptionElement struct {
	baseElement
	Flag OptionFlag
}

func (e *OptionElement) Accept(v ElementVisitor) any { return v.VisitOption(e) }

// ApplyTo replays the option.
func (e *OptionElement) ApplyTo(b Binder) {
	switch e.Flag {
	case RequireExplicitBindingsFlag:
		b.RequireExplicitBindings()
	case DisableCircularProxiesFlag:
		b.DisableCircularProxies()
	case RequireInjectedConstructorsFlag:
		b.RequireInjectedConstructors()
	case RequireExactBindingQualifiersFlag:
		b.RequireExactBindingQualifiers()
	}
}

// ScannerRegistration records a module method scanner.
type ScannerRegistration struct {
	baseElement
	Scanner ModuleScanner
}

func (e *ScannerRegistration) Accept(v ElementVisitor) any { return v.VisitScannerRegistration(e) }
func (e *ScannerRegistration) ApplyTo(b Binder)            { b.ScanModuleMethods(e.Scanner) }

// RestrictionElement attaches a source restriction to a qualifier name or
// a type. Bindings for restricted keys are admitted only from modules
// carrying an acceptable permit.
type RestrictionElement struct {
	baseElement
	QualifierName string
	Type          TypeLiteral
	Restriction   Restriction
}

func (e *RestrictionElement) Accept(v ElementVisitor) any { return v.VisitRestriction(e) }

// ApplyTo replays the restriction.
func (e *RestrictionElement) ApplyTo(b Binder) {
	if e.QualifierName != "" {
		b.RestrictQualifier(e.QualifierName, e.Restriction)
	} else {
		b.RestrictType(e.Type, e.Restriction)
	}
}
