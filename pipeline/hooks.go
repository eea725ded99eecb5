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

import "sync"

// subscriberList is a subscription-ordered list of event handlers. Adding
// and removing subscribers concurrently with Fire is permitted; Fire
// dispatches against a snapshot taken under a read lock, so an in-flight
// Fire may observe either the old or the new subscriber set.
type subscriberList[T any] struct {
	mu   sync.RWMutex
	next int
	subs []subscriberEntry[T]
}

type subscriberEntry[T any] struct {
	id int
	fn func(*T)
}

func newSubscriberList[T any]() *subscriberList[T] {
	return &subscriberList[T]{}
}

// Subscribe registers fn and returns a function that removes it.
func (l *subscriberList[T]) Subscribe(fn func(*T)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs = append(l.subs, subscriberEntry[T]{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, e := range l.subs {
			if e.id == id {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Fire invokes every current subscriber, in subscription order, against
// the same event pointer so handlers can mutate it in place.
func (l *subscriberList[T]) Fire(event *T) {
	l.mu.RLock()
	snapshot := make([]func(*T), len(l.subs))
	for i, e := range l.subs {
		snapshot[i] = e.fn
	}
	l.mu.RUnlock()

	for _, fn := range snapshot {
		fn(event)
	}
}

// Process-global event records.

// PipelineCreatedEvent fires once per Pipeline constructed.
type PipelineCreatedEvent struct {
	Pipeline *Pipeline
}

// CommandLoadingEvent gates whether a filter registration is accepted.
type CommandLoadingEvent struct {
	Category      string
	Name          string
	QualifiedName string
	Description   string
	Cancel        bool
}

// PipelineCompleteEvent may rewrite the final value Execute returns.
type PipelineCompleteEvent struct {
	Pipeline *Pipeline
	Value    string
}

// FilterDocLoadingEvent gates whether a filter is added to the docs index.
type FilterDocLoadingEvent struct {
	Category      string
	Name          string
	QualifiedName string
	Description   string
	Cancel        bool
}

// CategoryDocLoadingEvent gates whether a new category is recorded.
type CategoryDocLoadingEvent struct {
	Category    string
	Description string
	Cancel      bool
}

// Per-pipeline event records.

// FilterExecutingEvent fires before a filter body runs and may rewrite
// both the input string and the command that will be passed to it.
type FilterExecutingEvent struct {
	Command *PipelineCommand
	Input   string
}

// FilterExecutedEvent fires after a filter body runs, before its output
// is written to the output variable slot, and may rewrite the output.
type FilterExecutedEvent struct {
	Command *PipelineCommand
	Output  string
}

// VariableRetrievingEvent fires before a variable lookup and may rewrite
// the (already normalized) key that will be looked up.
type VariableRetrievingEvent struct {
	Key string
}

// VariableRetrievedEvent fires after a variable lookup and may rewrite
// the value that will be returned to the caller.
type VariableRetrievedEvent struct {
	Key   string
	Value string
}

// GlobalHooks holds the five process-global lifecycle hooks shared by
// every Pipeline and Registry operation.
type GlobalHooks struct {
	PipelineCreated    *subscriberList[PipelineCreatedEvent]
	CommandLoading     *subscriberList[CommandLoadingEvent]
	PipelineComplete   *subscriberList[PipelineCompleteEvent]
	FilterDocLoading   *subscriberList[FilterDocLoadingEvent]
	CategoryDocLoading *subscriberList[CategoryDocLoadingEvent]
}

// NewGlobalHooks returns an empty set of process-global hooks.
func NewGlobalHooks() *GlobalHooks {
	return &GlobalHooks{
		PipelineCreated:    newSubscriberList[PipelineCreatedEvent](),
		CommandLoading:     newSubscriberList[CommandLoadingEvent](),
		PipelineComplete:   newSubscriberList[PipelineCompleteEvent](),
		FilterDocLoading:   newSubscriberList[FilterDocLoadingEvent](),
		CategoryDocLoading: newSubscriberList[CategoryDocLoadingEvent](),
	}
}

// PipelineHooks holds the four hooks scoped to a single Pipeline instance.
type PipelineHooks struct {
	FilterExecuting    *subscriberList[FilterExecutingEvent]
	FilterExecuted     *subscriberList[FilterExecutedEvent]
	VariableRetrieving *subscriberList[VariableRetrievingEvent]
	VariableRetrieved  *subscriberList[VariableRetrievedEvent]
}

// NewPipelineHooks returns an empty set of per-pipeline hooks.
func NewPipelineHooks() *PipelineHooks {
	return &PipelineHooks{
		FilterExecuting:    newSubscriberList[FilterExecutingEvent](),
		FilterExecuted:     newSubscriberList[FilterExecutedEvent](),
		VariableRetrieving: newSubscriberList[VariableRetrievingEvent](),
		VariableRetrieved:  newSubscriberList[VariableRetrievedEvent](),
	}
}
