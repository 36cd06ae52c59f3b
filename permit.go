package wisp

import (
	"regexp"

	"github.com/calummacc/wisp/errors"
	"go.uber.org/zap"
)

// Permit is a named capability a module can carry. Permits gate access to
// restricted binding sources: a binding for a restricted key is admitted
// only when some module on its installation path holds an acceptable
// permit.
type Permit string

// PermitHolder is implemented by modules (and scanners) that carry
// permits.
type PermitHolder interface {
	// Permits returns the capabilities this module grants to elements
	// recorded beneath it.
	Permits() []Permit
}

// RestrictionLevel selects how a restriction violation is reported.
type RestrictionLevel int

const (
	// RestrictionError fails injector creation on violation.
	RestrictionError RestrictionLevel = iota
	// RestrictionWarning logs the violation and admits the binding.
	RestrictionWarning
)

// Restriction gates who may bind a qualifier or type. A binding is
// permitted when its installation path holds any of the accepted permits,
// or exempt when any module on the path matches ExemptModules.
type Restriction struct {
	// Permits lists the capabilities that admit a binding.
	Permits []Permit
	// ExemptModules is a regular expression over module names; a match
	// anywhere on the installation path exempts the binding.
	ExemptModules string
	// Level selects error or warning enforcement.
	Level RestrictionLevel
	// Explanation is appended to violation messages.
	Explanation string
}

// permitSet is the set of permits active at one module source.
type permitSet map[Permit]struct{}

func (s permitSet) union(other permitSet) permitSet {
	out := make(permitSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

func (s permitSet) containsAny(permits []Permit) bool {
	for _, p := range permits {
		if _, ok := s[p]; ok {
			return true
		}
	}
	return false
}

// PermitMap records, for every module source, the permits active along
// its installation path. It is populated during module installation,
// frozen by finish, and may be cleared once the injector is built.
type PermitMap struct {
	permits  map[*ModuleSource]permitSet
	finished bool
}

func newPermitMap() *PermitMap {
	return &PermitMap{permits: make(map[*ModuleSource]permitSet)}
}

// register computes the active set for a new module source: the parent's
// set plus the module's own permits.
func (pm *PermitMap) register(ms *ModuleSource, own []Permit) {
	if pm.finished {
		panic(errors.NewConfigurationError("permit map modified after finish"))
	}
	set := make(permitSet, len(own))
	for _, p := range own {
		set[p] = struct{}{}
	}
	if ms.parent != nil {
		if parentSet, ok := pm.permits[ms.parent]; ok {
			set = set.union(parentSet)
		}
	}
	pm.permits[ms] = set
}

// forSource returns the active permit set of a module source.
func (pm *PermitMap) forSource(ms *ModuleSource) permitSet {
	if pm == nil || pm.permits == nil {
		return nil
	}
	return pm.permits[ms]
}

// finish freezes the map.
func (pm *PermitMap) finish() {
	pm.finished = true
}

// Clear drops the map's contents. Called once the injector is built; the
// map is not consulted after creation.
func (pm *PermitMap) Clear() {
	pm.permits = nil
}

// restrictionRegistry collects the restrictions declared in the element
// stream, keyed by qualifier name and by type.
type restrictionRegistry struct {
	byQualifier map[string]restrictionEntry
	byType      map[TypeLiteral]restrictionEntry
}

type restrictionEntry struct {
	restriction Restriction
	source      *ElementSource
}

func newRestrictionRegistry() *restrictionRegistry {
	return &restrictionRegistry{
		byQualifier: make(map[string]restrictionEntry),
		byType:      make(map[TypeLiteral]restrictionEntry),
	}
}

func (r *restrictionRegistry) addQualifier(name string, res Restriction, src *ElementSource) {
	r.byQualifier[name] = restrictionEntry{restriction: res, source: src}
}

func (r *restrictionRegistry) addType(t TypeLiteral, res Restriction, src *ElementSource) {
	r.byType[t] = restrictionEntry{restriction: res, source: src}
}

// restrictionFor returns the restriction applying to a key. A qualifier
// restriction takes precedence over a type restriction.
func (r *restrictionRegistry) restrictionFor(key Key) (Restriction, bool) {
	if q, ok := key.Qualifier(); ok {
		if e, ok := r.byQualifier[q.Name()]; ok {
			return e.restriction, true
		}
	}
	if e, ok := r.byType[key.TypeLiteral()]; ok {
		return e.restriction, true
	}
	return Restriction{}, false
}

// checkRestriction verifies one binding against a restriction. The permit
// set is collected along the element source chain: the module path, a
// trusted original source's path, and permits carried by the recording
// scanner. Violations at warning level are logged; at error level a
// message is returned.
func checkRestriction(key Key, src *ElementSource, res Restriction, pm *PermitMap, logger *zap.Logger) *errors.Message {
	permits := make(permitSet)
	var moduleNames []string

	collect := func(s *ElementSource) {
		for ; s != nil; s = nextTrustedOriginal(s) {
			for ms := s.module; ms != nil; ms = ms.parent {
				permits = permits.union(pm.forSource(ms))
				moduleNames = append(moduleNames, ms.name)
			}
			if s.scanner != nil {
				if holder, ok := s.scanner.(PermitHolder); ok {
					for _, p := range holder.Permits() {
						permits[p] = struct{}{}
					}
				}
			}
		}
	}
	collect(src)

	if permits.containsAny(res.Permits) {
		return nil
	}
	if res.ExemptModules != "" {
		re, err := regexp.Compile(res.ExemptModules)
		if err == nil {
			for _, name := range moduleNames {
				if re.MatchString(name) {
					return nil
				}
			}
		}
	}

	text := "binding to restricted source " + key.String() + " is not permitted"
	if res.Explanation != "" {
		text += ": " + res.Explanation
	}
	if res.Level == RestrictionWarning {
		logger.Warn(text,
			zap.String("key", key.String()),
			zap.Strings("modules", moduleNames))
		return nil
	}
	m := errors.NewMessage(errors.RestrictedBindingSource, "%s (module path: %v)", text, moduleNames)
	return m.WithSource(src)
}

// nextTrustedOriginal follows the original-source link when it was
// assigned internally; spoofed originals do not contribute permits.
func nextTrustedOriginal(s *ElementSource) *ElementSource {
	if s.trustedOriginal {
		return s.original
	}
	return nil
}
