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
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Filter is the callable shape every registered command dispatches
// through, whether it started life as a free function or a closure.
type Filter func(input string, cmd *PipelineCommand, log *ExecutionLogEntry) (string, error)

// FilterIdentifier is one (category, name, description) registration
// derived from a single annotated method; a method can carry more than
// one identifier, producing multiple registrations for the same callable.
type FilterIdentifier struct {
	Category    string
	Name        string
	Description string
}

// FilterDescriptor bundles one callable with the identifiers it should be
// registered under and the type names it depends on.
type FilterDescriptor struct {
	Method       Filter
	Identifiers  []FilterIdentifier
	Dependencies []string
}

// FilterBundle is a type-like grouping of annotated methods, the
// reflection-free stand-in for an annotated filter class.
type FilterBundle interface {
	BundleCategory() string
	BundleFilters() []FilterDescriptor
}

// CommandFactoryFunc rewrites a single matching command into zero or more
// replacement commands.
type CommandFactoryFunc func(cmd *PipelineCommand) ([]*PipelineCommand, error)

type factoryEntry struct {
	pattern string
	re      *regexp.Regexp
	fn      CommandFactoryFunc
}

type filterDoc struct {
	Category    string
	Name        string
	Description string
}

// Registry is the process-global filter catalog: live filters, hidden
// (unloadable or removed) entries, the category/doc index, the factory
// table, and the process-global variable store and hooks every Pipeline
// shares.
type Registry struct {
	mu                   sync.RWMutex
	filters              map[string]Filter
	hidden               map[string]string
	categories           map[string]bool
	categoryDescriptions map[string]string
	docs                 map[string]filterDoc
	factories            []*factoryEntry
	templates            map[string]CommandFactoryFunc
	knownTypes           map[string]bool

	Hooks   *GlobalHooks
	Globals *VariableStore

	log *logrus.Entry
}

// NewRegistry returns a fresh, empty registry with its built-in
// core.include factory already wired up.
func NewRegistry() *Registry {
	r := &Registry{
		filters:              make(map[string]Filter),
		hidden:               make(map[string]string),
		categories:           make(map[string]bool),
		categoryDescriptions: make(map[string]string),
		docs:                 make(map[string]filterDoc),
		templates:            make(map[string]CommandFactoryFunc),
		knownTypes:           make(map[string]bool),
		Hooks:                NewGlobalHooks(),
		Globals:              NewVariableStore(),
		log:                  logrus.WithField("component", "pipeline.registry"),
	}
	re, err := compileWildcard("core.include")
	if err != nil {
		// core.include is a fixed literal pattern; this cannot fail.
		panic(err)
	}
	r.factories = append(r.factories, &factoryEntry{
		pattern: "core.include",
		re:      re,
		fn:      includeFactory(r),
	})
	return r
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the package-level process-global registry.
func DefaultRegistry() *Registry { return defaultRegistry }

// DeclareType marks a type name as resolvable, for use by filter
// dependency declarations.
func (r *Registry) DeclareType(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knownTypes[name] = true
}

// HasType reports whether name was previously declared via DeclareType.
func (r *Registry) HasType(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.knownTypes[name]
}

// RegisterType introspects a bundle of annotated methods, registering
// each (category, name) identifier they declare. categoryOverride, when
// non-empty, wins over both the identifier's and the bundle's category.
func (r *Registry) RegisterType(bundle FilterBundle, categoryOverride string) {
	for _, desc := range bundle.BundleFilters() {
		for _, id := range desc.Identifiers {
			category := firstNonEmpty(categoryOverride, id.Category, bundle.BundleCategory())
			r.addFilter(desc.Method, category, id.Name, id.Description, desc.Dependencies)
		}
	}
}

// RegisterMethod registers a single callable explicitly, with no
// dependency checking — the Go equivalent of an unannotated method
// registered by name.
func (r *Registry) RegisterMethod(method Filter, category, name, description string) {
	r.addFilter(method, category, name, description, nil)
}

// addFilter normalizes identifiers, checks dependencies, fires the
// command-loading and doc hooks, and stores the callable.
func (r *Registry) addFilter(method Filter, category, name, description string, dependencies []string) {
	qualified := normalizeQualifiedName(category + "." + name)
	catNorm, nameNorm := splitQualified(qualified)

	if isBuiltin(qualified) {
		reason := fmt.Sprintf("%s is a reserved built-in command", qualified)
		r.mu.Lock()
		delete(r.filters, qualified)
		r.hidden[qualified] = reason
		r.mu.Unlock()
		r.log.WithField("qualified_name", qualified).Debug("refused to shadow built-in command")
		return
	}

	for _, dep := range dependencies {
		if !r.HasType(dep) {
			reason := fmt.Sprintf("missing dependency: %s", dep)
			r.mu.Lock()
			delete(r.filters, qualified)
			r.hidden[qualified] = reason
			r.mu.Unlock()
			r.log.WithFields(logrus.Fields{
				"qualified_name": qualified,
				"dependency":     dep,
			}).Debug("hid filter: missing dependency")
			return
		}
	}

	loading := &CommandLoadingEvent{
		Category:      catNorm,
		Name:          nameNorm,
		QualifiedName: qualified,
		Description:   description,
	}
	r.Hooks.CommandLoading.Fire(loading)
	if loading.Cancel {
		r.log.WithField("qualified_name", qualified).Debug("command-loading cancelled")
		return
	}

	r.mu.Lock()
	r.filters[qualified] = method
	delete(r.hidden, qualified)
	r.mu.Unlock()
	r.log.WithField("qualified_name", qualified).Debug("registered filter")

	docEvent := &FilterDocLoadingEvent{
		Category:      catNorm,
		Name:          nameNorm,
		QualifiedName: qualified,
		Description:   description,
	}
	r.Hooks.FilterDocLoading.Fire(docEvent)
	if docEvent.Cancel {
		return
	}

	r.mu.Lock()
	r.docs[qualified] = filterDoc{Category: catNorm, Name: nameNorm, Description: description}
	seen := r.categories[catNorm]
	r.mu.Unlock()

	if seen {
		return
	}
	catEvent := &CategoryDocLoadingEvent{Category: catNorm, Description: description}
	r.Hooks.CategoryDocLoading.Fire(catEvent)
	if catEvent.Cancel {
		return
	}
	r.mu.Lock()
	r.categories[catNorm] = true
	r.categoryDescriptions[catNorm] = catEvent.Description
	r.mu.Unlock()
}

// Remove deletes a live registration and records a hidden-command entry
// carrying reason, so future invocations surface it as CommandUnavailable.
func (r *Registry) Remove(qualifiedName, reason string) {
	q := normalizeQualifiedName(qualifiedName)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filters, q)
	r.hidden[q] = reason
	r.log.WithFields(logrus.Fields{"qualified_name": q, "reason": reason}).Debug("removed filter")
}

// RemoveCategory removes every live entry whose key begins with
// "category.", each recording the same reason.
func (r *Registry) RemoveCategory(category, reason string) {
	prefix := normalizeSegment(category) + "."
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.filters {
		if strings.HasPrefix(k, prefix) {
			delete(r.filters, k)
			r.hidden[k] = reason
		}
	}
	r.log.WithFields(logrus.Fields{"category": prefix, "reason": reason}).Debug("removed category")
}

// Lookup returns the live filter registered under qualifiedName.
func (r *Registry) Lookup(qualifiedName string) (Filter, bool) {
	q := normalizeQualifiedName(qualifiedName)
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[q]
	return f, ok
}

// HiddenReason returns the recorded reason a name is unavailable, if any.
func (r *Registry) HiddenReason(qualifiedName string) (string, bool) {
	q := normalizeQualifiedName(qualifiedName)
	r.mu.RLock()
	defer r.mu.RUnlock()
	reason, ok := r.hidden[q]
	return reason, ok
}

// RegisterFactory compiles pattern (a `*`/`?` wildcard string) to a
// case-insensitive regex and registers fn as the replacement for any
// command whose normalized name matches it.
func (r *Registry) RegisterFactory(pattern string, fn CommandFactoryFunc) error {
	re, err := compileWildcard(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = append(r.factories, &factoryEntry{pattern: pattern, re: re, fn: fn})
	return nil
}

// RegisterTemplate names a reusable command sequence that core.include
// can splice in by name.
func (r *Registry) RegisterTemplate(name string, commands []*PipelineCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[normalizeSegment(name)] = func(*PipelineCommand) ([]*PipelineCommand, error) {
		cloned := make([]*PipelineCommand, len(commands))
		for i, c := range commands {
			cloned[i] = c.Clone()
		}
		return cloned, nil
	}
}

// matchFactory returns the first registered factory whose pattern matches
// the given normalized qualified name.
func (r *Registry) matchFactory(normalizedName string) *factoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.factories {
		if f.re.MatchString(normalizedName) {
			return f
		}
	}
	return nil
}

func includeFactory(r *Registry) CommandFactoryFunc {
	return func(cmd *PipelineCommand) ([]*PipelineCommand, error) {
		name, ok := cmd.PositionalArg(0)
		if !ok || name == "" {
			return nil, fmt.Errorf("core.include requires a template name argument")
		}
		r.mu.RLock()
		fn, ok := r.templates[normalizeSegment(name)]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no template registered under %q", name)
		}
		return fn(cmd)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// compileWildcard turns a `*`/`?` glob into an anchored, case-insensitive
// regular expression: `*` matches any run of characters, `?` matches one.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile("(?i)" + sb.String())
}
