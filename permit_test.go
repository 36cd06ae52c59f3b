package wisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	wisperrors "github.com/calummacc/wisp/errors"
)

// Test types
type (
	permInternalAPI struct {
		Name string
	}

	// frameworkModule carries the framework permit and binds the
	// restricted key.
	frameworkModule struct{}

	// plainModule binds the restricted key without any permit.
	plainModule struct{}

	// grantingParent installs an unpermitted module underneath a
	// permitted one; permits flow down the installation path.
	grantingParent struct{}
)

const frameworkPermit Permit = "framework"

func restrictionModule(level RestrictionLevel) Module {
	return NewModule("restriction", func(b Binder) {
		b.RestrictQualifier("internal", Restriction{
			Permits:     []Permit{frameworkPermit},
			Level:       level,
			Explanation: "internal bindings are reserved for the framework",
		})
	})
}

func bindRestricted(b Binder) {
	b.BindKey(QualifiedKeyOf[*permInternalAPI](Marker("internal"))).
		ToInstance(&permInternalAPI{Name: "api"})
}

func (m *frameworkModule) Configure(b Binder) { bindRestricted(b) }
func (m *frameworkModule) Permits() []Permit  { return []Permit{frameworkPermit} }

func (m *plainModule) Configure(b Binder) { bindRestricted(b) }

func (m *grantingParent) Configure(b Binder) { b.Install(&plainModule{}) }
func (m *grantingParent) Permits() []Permit  { return []Permit{frameworkPermit} }

// TestRestrictedBindingRejected tests scenario six: an unpermitted
// module binding a restricted qualifier fails creation with a message
// naming the module.
func TestRestrictedBindingRejected(t *testing.T) {
	_, err := CreateInjector(restrictionModule(RestrictionError), &plainModule{})
	require.Error(t, err)
	text := err.Error()
	assert.Contains(t, text, string(wisperrors.RestrictedBindingSource))
	assert.Contains(t, text, "plainModule")
	assert.Contains(t, text, "reserved for the framework")
}

// TestPermittedModuleAccepted tests that a module carrying the permit
// binds the restricted key.
func TestPermittedModuleAccepted(t *testing.T) {
	inj, err := CreateInjector(restrictionModule(RestrictionError), &frameworkModule{})
	require.NoError(t, err)

	v, err := inj.GetInstance(QualifiedKeyOf[*permInternalAPI](Marker("internal")))
	require.NoError(t, err)
	assert.Equal(t, "api", v.(*permInternalAPI).Name)
}

// TestPermitFlowsDownInstallationPath tests that a permit anywhere on
// the path admits the binding.
func TestPermitFlowsDownInstallationPath(t *testing.T) {
	_, err := CreateInjector(restrictionModule(RestrictionError), &grantingParent{})
	assert.NoError(t, err)
}

// TestExemptModuleRegex tests the exemption escape hatch.
func TestExemptModuleRegex(t *testing.T) {
	exempting := NewModule("restriction", func(b Binder) {
		b.RestrictQualifier("internal", Restriction{
			Permits:       []Permit{frameworkPermit},
			ExemptModules: "^plainModule$",
			Level:         RestrictionError,
		})
	})
	_, err := CreateInjector(exempting, &plainModule{})
	assert.NoError(t, err)
}

// TestWarningLevelLogsAndAdmits tests warning-level enforcement: the
// binding is admitted and the violation is logged.
func TestWarningLevelLogsAndAdmits(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	inj, err := NewInjectorBuilder().
		Logger(zap.New(core)).
		Install(restrictionModule(RestrictionWarning), &plainModule{}).
		Build()
	require.NoError(t, err)

	_, err = inj.GetInstance(QualifiedKeyOf[*permInternalAPI](Marker("internal")))
	require.NoError(t, err)

	entries := logs.FilterLevelExact(zap.WarnLevel).All()
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "not permitted")
}

// TestTypeRestriction tests a restriction attached to a type rather than
// a qualifier.
func TestTypeRestriction(t *testing.T) {
	restrictType := NewModule("restriction", func(b Binder) {
		b.RestrictType(TypeOf[*permInternalAPI](), Restriction{
			Permits: []Permit{frameworkPermit},
			Level:   RestrictionError,
		})
	})
	binder := NewModule("binder", func(b Binder) {
		Bind[*permInternalAPI](b).ToInstance(&permInternalAPI{})
	})
	_, err := CreateInjector(restrictType, binder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(wisperrors.RestrictedBindingSource))
}

// TestQualifierRestrictionTakesPrecedence tests that when both the type
// and the qualifier carry restrictions, only the qualifier's applies.
func TestQualifierRestrictionTakesPrecedence(t *testing.T) {
	// The type restriction would reject everything; the qualifier
	// restriction exempts the binding module, and it wins.
	restrictions := NewModule("restrictions", func(b Binder) {
		b.RestrictType(TypeOf[*permInternalAPI](), Restriction{
			Permits: []Permit{"nobody-has-this"},
			Level:   RestrictionError,
		})
		b.RestrictQualifier("internal", Restriction{
			Permits:       []Permit{frameworkPermit},
			ExemptModules: "plainModule",
			Level:         RestrictionError,
		})
	})
	_, err := CreateInjector(restrictions, &plainModule{})
	assert.NoError(t, err)
}
