package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A pipeline with no user commands is the identity function.
func TestExecuteIdentityPipeline(t *testing.T) {
	r := NewRegistry()
	p := NewPipeline(r, ExecutionOptions{})
	out, err := p.Execute("hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestExecuteIdentityPipelineNilInput(t *testing.T) {
	r := NewRegistry()
	p := NewPipeline(r, ExecutionOptions{})
	out, err := p.Execute(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

// Scenario 3: a pipeline-created hook seeds a local variable that
// core.readfrom then routes into the global slot.
func TestPipelineCreatedHookSeedsLocal(t *testing.T) {
	r := NewRegistry()
	unsubscribe := r.Hooks.PipelineCreated.Subscribe(func(e *PipelineCreatedEvent) {
		e.Pipeline.SetVariable("name", "James Bond", false)
	})
	defer unsubscribe()

	p := NewPipeline(r, ExecutionOptions{})
	cmd := NewPipelineCommand(BuiltinReadFrom)
	cmd.SetPositionalArg(0, "name")
	p.AddCommand(cmd)

	out, err := p.Execute(nil)
	require.NoError(t, err)
	assert.Equal(t, "James Bond", out)
}

// Scenario 5: a pipeline-complete hook can rewrite the returned value.
func TestPipelineCompleteRewrite(t *testing.T) {
	r := NewRegistry()
	unsubscribe := r.Hooks.PipelineComplete.Subscribe(func(e *PipelineCompleteEvent) {
		e.Value = "foo"
	})
	defer unsubscribe()

	p := NewPipeline(r, ExecutionOptions{})
	out, err := p.Execute("bar")
	require.NoError(t, err)
	assert.Equal(t, "foo", out)
}

// A filter that mutates SendToLabel redirects the next step, and the
// commands it skips are never executed.
func TestBranchViaSendToLabel(t *testing.T) {
	r := NewRegistry()
	var ranSkip bool

	jump := func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error) {
		target := "landing"
		cmd.SendToLabel = &target
		return input, nil
	}
	skip := func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error) {
		ranSkip = true
		return input + "-skip", nil
	}
	land := func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error) {
		return input + "-landed", nil
	}

	r.RegisterMethod(jump, "flow", "jump", "")
	r.RegisterMethod(skip, "flow", "skip", "")
	r.RegisterMethod(land, "flow", "land", "")

	p := NewPipeline(r, ExecutionOptions{})
	p.AddCommand(NewPipelineCommand("flow.jump"))
	p.AddCommand(NewPipelineCommand("flow.skip"))
	landCmd := NewPipelineCommand("flow.land")
	landCmd.Label = "landing"
	p.AddCommand(landCmd)

	out, err := p.Execute("start")
	require.NoError(t, err)
	assert.Equal(t, "start-landed", out)
	assert.False(t, ranSkip, "the skipped command must not execute")
}

func TestUnknownLabelFails(t *testing.T) {
	r := NewRegistry()
	p := NewPipeline(r, ExecutionOptions{})
	cmd := NewPipelineCommand(BuiltinLabel)
	target := "nowhere"
	cmd.SendToLabel = &target
	p.AddCommand(cmd)

	_, err := p.Execute("x")
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindUnknownLabel, ee.Kind)
}

func TestVariableReferenceArgumentResolvedAtDispatch(t *testing.T) {
	r := NewRegistry()
	var seenArg string
	capture := func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error) {
		v, _ := cmd.PositionalArg(0)
		seenArg = v
		return input, nil
	}
	r.RegisterMethod(capture, "test", "capture", "")

	p := NewPipeline(r, ExecutionOptions{})
	p.SetVariable("greeting", "hello", false)
	cmd := NewPipelineCommand("test.capture")
	cmd.SetPositionalArg(0, "$greeting")
	p.AddCommand(cmd)

	_, err := p.Execute("")
	require.NoError(t, err)
	assert.Equal(t, "hello", seenArg)
}

func TestAppendToOutputConcatenates(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error) {
		return "-appended", nil
	}, "test", "append", "")

	p := NewPipeline(r, ExecutionOptions{})
	p.SetVariable(GlobalVariable, "", false)
	cmd := NewPipelineCommand("test.append")
	cmd.AppendToOutput = true
	p.AddCommand(cmd)

	out, err := p.Execute("base")
	require.NoError(t, err)
	assert.Equal(t, "base-appended", out)
}

func TestFactoryExpansionIdempotent(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(appendFilter("X"), "real", "step", "")
	require.NoError(t, r.RegisterFactory("macro.*", func(cmd *PipelineCommand) ([]*PipelineCommand, error) {
		return []*PipelineCommand{NewPipelineCommand("real.step")}, nil
	}))

	p := NewPipeline(r, ExecutionOptions{})
	p.AddCommand(NewPipelineCommand("macro.expand"))

	out1, err := p.Execute("A")
	require.NoError(t, err)
	assert.Equal(t, "AX", out1)

	// Re-running the same (already expanded) pipeline must not expand again.
	out2, err := p.Execute("A")
	require.NoError(t, err)
	assert.Equal(t, "AX", out2)
}

func TestFactorySelfReferenceGuarded(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("loop.*", func(cmd *PipelineCommand) ([]*PipelineCommand, error) {
		return []*PipelineCommand{NewPipelineCommand("loop.again")}, nil
	}))

	p := NewPipeline(r, ExecutionOptions{MaxFactoryPasses: 10})
	p.AddCommand(NewPipelineCommand("loop.start"))

	_, err := p.Execute("x")
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindFilterFailure, ee.Kind)
}

func TestCoreIncludeSplicesTemplate(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(appendFilter("-A"), "step", "a", "")
	r.RegisterMethod(appendFilter("-B"), "step", "b", "")

	r.RegisterTemplate("greeting", []*PipelineCommand{
		NewPipelineCommand("step.a"),
		NewPipelineCommand("step.b"),
	})

	p := NewPipeline(r, ExecutionOptions{})
	include := NewPipelineCommand(BuiltinInclude)
	include.SetPositionalArg(0, "greeting")
	p.AddCommand(include)

	out, err := p.Execute("x")
	require.NoError(t, err)
	assert.Equal(t, "x-A-B", out)
}
