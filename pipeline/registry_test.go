package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendFilter(suffix string) Filter {
	return func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error) {
		return input + suffix, nil
	}
}

func fixedFilter(output string) Filter {
	return func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error) {
		return output, nil
	}
}

// Scenario 1: registering a new filter under an existing key replaces the
// old one atomically — last registration wins.
func TestRegistryOverrideLastWins(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(appendFilter("BAR"), "Text", "Append", "")

	p := NewPipeline(r, ExecutionOptions{})
	cmd := NewPipelineCommand("Text.Append")
	p.AddCommand(cmd)
	out, err := p.Execute("FOO")
	require.NoError(t, err)
	assert.Equal(t, "FOOBAR", out)

	r.RegisterMethod(appendFilter("BAZ"), "Text", "Append", "")

	p2 := NewPipeline(r, ExecutionOptions{})
	p2.AddCommand(NewPipelineCommand("Text.Append"))
	out2, err := p2.Execute("FOO")
	require.NoError(t, err)
	assert.Equal(t, "FOOBAZ", out2)
}

// Scenario 2: a custom category registration is addressable by that
// category rather than any type-derived default.
func TestRegistryCustomCategory(t *testing.T) {
	r := NewRegistry()
	bundle := customBundle{}
	r.RegisterType(bundle, "something")

	p := NewPipeline(r, ExecutionOptions{})
	p.AddCommand(NewPipelineCommand("something.MyMethod"))
	out, err := p.Execute("")
	require.NoError(t, err)
	assert.Equal(t, "fixed-output", out)
}

type customBundle struct{}

func (customBundle) BundleCategory() string { return "CustomFilters" }
func (customBundle) BundleFilters() []FilterDescriptor {
	return []FilterDescriptor{
		{
			Method:      fixedFilter("fixed-output"),
			Identifiers: []FilterIdentifier{{Name: "MyMethod"}},
		},
	}
}

// After remove(name, reason), invoking name surfaces CommandUnavailable
// whose message contains reason.
func TestRegistryRemoveSurfacesReason(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(appendFilter("X"), "Text", "Append", "")
	r.Remove("text.append", "deprecated filter")

	p := NewPipeline(r, ExecutionOptions{})
	p.AddCommand(NewPipelineCommand("Text.Append"))
	_, err := p.Execute("FOO")
	require.Error(t, err)

	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindCommandUnavailable, ee.Kind)
	assert.Contains(t, ee.Error(), "deprecated filter")
}

func TestRegistryRemoveCategory(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(appendFilter("X"), "Text", "Append", "")
	r.RegisterMethod(appendFilter("Y"), "Text", "Prepend", "")
	r.RemoveCategory("Text", "category retired")

	_, ok := r.Lookup("text.append")
	assert.False(t, ok)
	_, ok = r.Lookup("text.prepend")
	assert.False(t, ok)
	reason, hidden := r.HiddenReason("text.prepend")
	require.True(t, hidden)
	assert.Equal(t, "category retired", reason)
}

// Scenario 4: a command-loading hook can cancel registration outright.
func TestRegistryCancelledLoad(t *testing.T) {
	r := NewRegistry()
	unsubscribe := r.Hooks.CommandLoading.Subscribe(func(e *CommandLoadingEvent) {
		if e.QualifiedName == "text.append" {
			e.Cancel = true
		}
	})
	defer unsubscribe()

	r.RegisterMethod(appendFilter("X"), "Text", "Append", "")
	_, ok := r.Lookup("text.append")
	assert.False(t, ok)
	_, hidden := r.HiddenReason("text.append")
	assert.False(t, hidden, "a cancelled load should not be recorded as hidden")
}

// Scenario 6: a dependency that never resolves hides the command with a
// reason naming the missing type.
func TestRegistryMissingDependency(t *testing.T) {
	r := NewRegistry()
	r.addFilter(fixedFilter("never runs"), "Needs", "Thing", "", []string{"SomeUnresolvedType"})

	_, ok := r.Lookup("needs.thing")
	assert.False(t, ok)

	p := NewPipeline(r, ExecutionOptions{})
	p.AddCommand(NewPipelineCommand("Needs.Thing"))
	_, err := p.Execute("")
	require.Error(t, err)

	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindCommandUnavailable, ee.Kind)
	assert.Contains(t, ee.Error(), "SomeUnresolvedType")
}

func TestRegistryMissingCommandDistinctFromHidden(t *testing.T) {
	r := NewRegistry()
	p := NewPipeline(r, ExecutionOptions{})
	p.AddCommand(NewPipelineCommand("nope.nothing"))
	_, err := p.Execute("")
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindCommandMissing, ee.Kind)
}

func TestRegistryRefusesToShadowBuiltin(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(fixedFilter("nope"), "core", "label", "")

	_, ok := r.Lookup("core.label")
	assert.False(t, ok)
	reason, hidden := r.HiddenReason("core.label")
	require.True(t, hidden)
	assert.Contains(t, reason, "reserved built-in")
}

func TestWildcardFactoryMatching(t *testing.T) {
	re, err := compileWildcard("text.*")
	require.NoError(t, err)
	assert.True(t, re.MatchString("text.append"))
	assert.True(t, re.MatchString("TEXT.APPEND"))
	assert.False(t, re.MatchString("html.append"))

	re2, err := compileWildcard("text.a??end")
	require.NoError(t, err)
	assert.True(t, re2.MatchString("text.append"))
	assert.False(t, re2.MatchString("text.aend"))
}
