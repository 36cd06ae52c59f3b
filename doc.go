// Package wisp implements a runtime dependency-injection container.
//
// Modules describe bindings against a Binder; the element recorder turns
// a set of modules into an immutable element stream; the compiler turns
// the stream into a validated binding graph; the injector serves fully
// wired instances on demand, creating just-in-time bindings, honouring
// scopes and detecting circular references.
//
// Example:
//
//	type Database struct {
//	    DSN string `inject:"name=dsn"`
//	}
//
//	type UserService struct {
//	    DB *Database `inject:""`
//	}
//
//	func main() {
//	    injector, err := wisp.CreateInjector(wisp.NewModule("app", func(b wisp.Binder) {
//	        b.BindConstant(wisp.Named("dsn")).To("postgres://localhost")
//	        wisp.Bind[*Database](b).ToConstructor(NewDatabase).In(wisp.InScope(wisp.SingletonScopeName))
//	    }))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    svc, err := wisp.GetInstanceOf[*UserService](injector)
//	    // ...
//	}
//
// Configuration is recorded, not executed: module configuration yields a
// reifiable list of elements (see GetElements and GetModule) that tools
// can inspect, rewrite and replay. After creation the injector is safe
// for concurrent use.
package wisp
