/***** BEGIN LICENSE BLOCK *****
# This Source Code Form is subject to the terms of the Mozilla Public
# License, v. 2.0. If a copy of the MPL was not distributed with this file,
# You can obtain one at http://mozilla.org/MPL/2.0/.
#
# The Initial Developer of the Original Code is the Mozilla Foundation.
# Portions created by the Initial Developer are Copyright (C) 2012-2015
# the Initial Developer. All Rights Reserved.
#
# ***** END LICENSE BLOCK *****/

package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
)

const defaultMaxFactoryExpansions = 1000

// ExecutionLogEntry records one dispatched command's outcome. Filters
// receive a pointer to their own entry and may annotate it before
// returning.
type ExecutionLogEntry struct {
	Command       string
	QualifiedName string
	Label         string
	StartedAt     time.Time
	Elapsed       time.Duration
	Success       bool
	Error         string
}

// ExecutionOptions bundles the operational knobs a caller can set before
// running a Pipeline.
type ExecutionOptions struct {
	// Logger receives structured ambient logging for each dispatched
	// command. Defaults to logrus.StandardLogger().
	Logger *logrus.Logger

	// Context, when set, is checked between dispatched commands (never
	// while a filter call is in flight) so a caller can interrupt a long
	// script. A nil Context preserves the "no built-in cancellation"
	// behavior the core spec describes.
	Context context.Context

	// MaxFactoryPasses bounds the number of command-factory replacements
	// performed during expansion, guarding against self-referential
	// factories. Defaults to 1000.
	MaxFactoryPasses int
}

// Pipeline owns an ordered command list, a local variable store, an
// execution log, and its own FilterExecuting/FilterExecuted/
// VariableRetrieving/VariableRetrieved hook subscriptions. It must be
// driven by a single goroutine at a time.
type Pipeline struct {
	registry *Registry
	options  ExecutionOptions

	commands []*PipelineCommand
	expanded bool

	locals *VariableStore
	hooks  *PipelineHooks
	log    []ExecutionLogEntry
	runID  string

	byLabel    map[string]*PipelineCommand
	firstLabel string
}

// NewPipeline constructs a Pipeline bound to registry (DefaultRegistry()
// when nil) and fires the process-global pipeline-created hook.
func NewPipeline(registry *Registry, opts ExecutionOptions) *Pipeline {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if opts.MaxFactoryPasses <= 0 {
		opts.MaxFactoryPasses = defaultMaxFactoryExpansions
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	p := &Pipeline{
		registry: registry,
		options:  opts,
		locals:   NewVariableStore(),
		hooks:    NewPipelineHooks(),
		runID:    uuid.New(),
	}
	registry.Hooks.PipelineCreated.Fire(&PipelineCreatedEvent{Pipeline: p})
	return p
}

// Registry returns the registry this pipeline dispatches against.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Locals returns the pipeline's own variable store.
func (p *Pipeline) Locals() *VariableStore { return p.locals }

// Hooks returns the pipeline-scoped hook subscriptions.
func (p *Pipeline) Hooks() *PipelineHooks { return p.hooks }

// Log returns the execution log recorded by the most recent Execute call.
func (p *Pipeline) Log() []ExecutionLogEntry { return p.log }

// RunID returns this pipeline instance's correlation identifier.
func (p *Pipeline) RunID() string { return p.runID }

// Commands returns the pipeline's current (possibly already expanded)
// command list.
func (p *Pipeline) Commands() []*PipelineCommand { return p.commands }

// AddCommand appends cmd to the pipeline, stamping a synthetic label if
// none was set.
func (p *Pipeline) AddCommand(cmd *PipelineCommand) {
	if cmd.Label == "" {
		cmd.Label = uuid.New()
	}
	p.commands = append(p.commands, cmd)
}

// SetVariable stores a value directly into the pipeline's local store,
// bypassing read-only protection.
func (p *Pipeline) SetVariable(name string, value interface{}, readOnly bool) {
	p.locals.Set(name, value, readOnly)
}

// SafeSetVariable stores a value into the local store, respecting
// read-only protection.
func (p *Pipeline) SafeSetVariable(name string, value interface{}) error {
	return p.locals.SafeSet(name, value)
}

// ClearGlobals empties the process-global variable store.
func (p *Pipeline) ClearGlobals() { p.registry.Globals.Clear() }

// UnsetGlobal removes a single entry from the process-global store.
func (p *Pipeline) UnsetGlobal(name string) { p.registry.Globals.Unset(name) }

// GetVariable resolves name against the local store (falling back to the
// process-global store when fallbackToGlobal is true), firing the
// variable-retrieving and variable-retrieved hooks around the lookup.
func (p *Pipeline) GetVariable(name string, fallbackToGlobal bool) (string, error) {
	retrieving := &VariableRetrievingEvent{Key: NormalizeVariableName(name)}
	p.hooks.VariableRetrieving.Fire(retrieving)

	var fallback *VariableStore
	if fallbackToGlobal {
		fallback = p.registry.Globals
	}
	value, err := p.locals.Get(retrieving.Key, fallback)
	if err != nil {
		return "", err
	}

	retrieved := &VariableRetrievedEvent{Key: retrieving.Key, Value: value}
	p.hooks.VariableRetrieved.Fire(retrieved)
	return retrieved.Value, nil
}

// Execute drives the pipeline against input and returns the final value
// of the global variable slot, or the first engine error encountered.
func (p *Pipeline) Execute(input interface{}) (string, error) {
	p.log = p.log[:0]

	if !p.expanded {
		expanded, err := expandFactories(p.registry, p.commands, p.options.MaxFactoryPasses)
		if err != nil {
			return "", err
		}
		p.commands = expanded
		p.expanded = true
	}

	p.linkLabels()
	p.locals.Set(GlobalVariable, input, false)

	var nextLabel *string
	if p.firstLabel != "" {
		first := p.firstLabel
		nextLabel = &first
	}

	for nextLabel != nil {
		if p.options.Context != nil {
			select {
			case <-p.options.Context.Done():
				return "", newContextCancelled(p.options.Context.Err())
			default:
			}
		}

		cmd, ok := p.byLabel[strings.ToLower(*nextLabel)]
		if !ok {
			return "", newUnknownLabel(*nextLabel)
		}

		var err error
		nextLabel, err = p.dispatch(cmd)
		if err != nil {
			return "", err
		}
	}

	value, _ := p.locals.Get(GlobalVariable, nil)
	return p.fireComplete(value), nil
}

func (p *Pipeline) fireComplete(value string) string {
	event := &PipelineCompleteEvent{Pipeline: p, Value: value}
	p.registry.Hooks.PipelineComplete.Fire(event)
	return event.Value
}

// linkLabels removes any existing "end" label, appends a fresh synthetic
// sink, lifts core.label's first positional argument into each such
// command's Label field, fills in default SendToLabel pointers (each
// command points at the next one unless it already names a target), and
// rebuilds the label index. Safe to call more than once.
func (p *Pipeline) linkLabels() {
	filtered := make([]*PipelineCommand, 0, len(p.commands)+1)
	for _, cmd := range p.commands {
		if strings.ToLower(cmd.Label) == EndLabel {
			continue
		}
		filtered = append(filtered, cmd)
	}

	end := NewPipelineCommand(BuiltinLabel)
	end.SetPositionalArg(0, EndLabel)
	end.Label = EndLabel
	filtered = append(filtered, end)
	p.commands = filtered

	for _, cmd := range filtered {
		if cmd.NormalizedName() == BuiltinLabel {
			if label, ok := cmd.PositionalArg(0); ok && label != "" {
				cmd.Label = label
			}
		}
	}

	p.byLabel = make(map[string]*PipelineCommand, len(filtered))
	for i, cmd := range filtered {
		if cmd.SendToLabel == nil && i < len(filtered)-1 {
			next := filtered[i+1].Label
			cmd.SendToLabel = &next
		}
		p.byLabel[strings.ToLower(cmd.Label)] = cmd
	}

	if len(filtered) > 0 {
		p.firstLabel = filtered[0].Label
	}
}

// dispatch interprets the built-in pseudo-commands directly and routes
// everything else through the filter registry, returning the label to
// run next.
func (p *Pipeline) dispatch(cmd *PipelineCommand) (*string, error) {
	switch cmd.NormalizedName() {
	case BuiltinLabel:
		return cmd.SendToLabel, nil

	case BuiltinWriteTo:
		value, err := p.locals.Get(GlobalVariable, nil)
		if err != nil {
			return nil, err
		}
		target, _ := cmd.PositionalArg(0)
		if target == "" {
			target = cmd.OutputVariable
		}
		if err := p.locals.SafeSet(target, value); err != nil {
			return nil, err
		}
		return cmd.SendToLabel, nil

	case BuiltinReadFrom:
		source, _ := cmd.PositionalArg(0)
		if source == "" {
			source = cmd.InputVariable
		}
		value, err := p.locals.Get(source, p.registry.Globals)
		if err != nil {
			return nil, err
		}
		p.locals.Set(GlobalVariable, value, false)
		return cmd.SendToLabel, nil

	default:
		return p.dispatchFilter(cmd)
	}
}

// dispatchFilter performs the full filter-dispatch sequence from the
// execution driver spec: resolve $variable arguments, fire
// filter-executing, call the filter, fire filter-executed, apply append
// semantics, safe-set the output, and record the execution log entry.
func (p *Pipeline) dispatchFilter(cmd *PipelineCommand) (*string, error) {
	name := cmd.NormalizedName()
	filter, ok := p.registry.Lookup(name)
	if !ok {
		if reason, hidden := p.registry.HiddenReason(name); hidden {
			return nil, newCommandUnavailable(cmd, reason)
		}
		return nil, newCommandMissing(cmd)
	}

	resolvedArgs := make(map[string]string, len(cmd.Args))
	for k, v := range cmd.Args {
		if strings.HasPrefix(v, "$") {
			resolved, err := p.GetVariable(v, true)
			if err != nil {
				return nil, err
			}
			resolvedArgs[k] = resolved
		} else {
			resolvedArgs[k] = v
		}
	}
	dispatchCmd := *cmd
	dispatchCmd.Args = resolvedArgs

	input, err := p.locals.Get(cmd.InputVariable, p.registry.Globals)
	if err != nil {
		return nil, err
	}

	executing := &FilterExecutingEvent{Command: &dispatchCmd, Input: input}
	p.hooks.FilterExecuting.Fire(executing)
	finalCmd := executing.Command

	entry := ExecutionLogEntry{
		Command:       cmd.OriginalText,
		QualifiedName: name,
		Label:         cmd.Label,
		StartedAt:     time.Now(),
	}

	output, filterErr := filter(executing.Input, finalCmd, &entry)
	entry.Elapsed = time.Since(entry.StartedAt)

	logFields := logrus.Fields{
		"run_id":         p.runID,
		"label":          cmd.Label,
		"qualified_name": name,
		"elapsed":        entry.Elapsed,
	}

	if filterErr != nil {
		entry.Success = false
		entry.Error = filterErr.Error()
		p.log = append(p.log, entry)
		p.options.Logger.WithFields(logFields).WithError(filterErr).Error("filter failed")
		return nil, newFilterFailure(cmd, filterErr)
	}

	executed := &FilterExecutedEvent{Command: finalCmd, Output: output}
	p.hooks.FilterExecuted.Fire(executed)
	output = executed.Output

	if finalCmd.AppendToOutput {
		current, _ := p.locals.Get(finalCmd.OutputVariable, p.registry.Globals)
		output = current + output
	}

	if err := p.locals.SafeSet(finalCmd.OutputVariable, output); err != nil {
		entry.Success = false
		entry.Error = err.Error()
		p.log = append(p.log, entry)
		return nil, err
	}

	entry.Success = true
	p.log = append(p.log, entry)
	p.options.Logger.WithFields(logFields).Debug("filter executed")

	// A filter may have redirected control flow by mutating SendToLabel
	// on the command pointer it was handed; propagate that back onto the
	// queued command so the next main-loop iteration follows it.
	cmd.SendToLabel = finalCmd.SendToLabel
	return cmd.SendToLabel, nil
}
