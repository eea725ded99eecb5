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
	"regexp"
	"strconv"
	"strings"

	"github.com/pborman/uuid"
)

const (
	// GlobalVariable is the implicit current-text variable slot.
	GlobalVariable = "__global"

	// EndLabel marks the terminal sink appended to every pipeline.
	EndLabel = "end"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

func normalizeSegment(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// normalizeQualifiedName lowercases and strips non-alphanumerics from each
// segment of a "category.name" identifier, joining them back with a dot.
func normalizeQualifiedName(name string) string {
	parts := strings.SplitN(name, ".", 2)
	category := normalizeSegment(parts[0])
	member := ""
	if len(parts) > 1 {
		member = normalizeSegment(parts[1])
	}
	return category + "." + member
}

func splitQualified(qualifiedName string) (category, name string) {
	parts := strings.SplitN(qualifiedName, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// PipelineCommand is the parsed unit of work the execution driver steps
// through: a qualified filter name, its arguments, input/output variable
// slots, and the label-based control-flow pointers that link it to its
// neighbors.
type PipelineCommand struct {
	QualifiedName string
	Args          map[string]string

	InputVariable  string
	OutputVariable string
	AppendToOutput bool

	Label       string
	SendToLabel *string

	OriginalText         string
	CommandFactorySource string
}

// NewPipelineCommand builds a command defaulting both variable slots to
// the global slot and stamping it with a synthetic unique label.
func NewPipelineCommand(qualifiedName string) *PipelineCommand {
	return &PipelineCommand{
		QualifiedName:  qualifiedName,
		Args:           make(map[string]string),
		InputVariable:  GlobalVariable,
		OutputVariable: GlobalVariable,
		Label:          uuid.New(),
	}
}

// NormalizedName returns the lowercased registry lookup key for this
// command's qualified name, with non-alphanumerics stripped from each
// segment.
func (c *PipelineCommand) NormalizedName() string {
	return normalizeQualifiedName(c.QualifiedName)
}

// SetArg stores a raw (unresolved) argument value under a named key.
func (c *PipelineCommand) SetArg(key, value string) {
	if c.Args == nil {
		c.Args = make(map[string]string)
	}
	c.Args[key] = value
}

// SetPositionalArg stores a raw argument value under a positional index.
func (c *PipelineCommand) SetPositionalArg(index int, value string) {
	c.SetArg(strconv.Itoa(index), value)
}

// Arg returns the raw value stored under key, if any.
func (c *PipelineCommand) Arg(key string) (string, bool) {
	v, ok := c.Args[key]
	return v, ok
}

// PositionalArg returns the raw value stored under a positional index.
func (c *PipelineCommand) PositionalArg(index int) (string, bool) {
	return c.Arg(strconv.Itoa(index))
}

// Clone returns a deep-enough copy suitable for re-use as a factory
// emission: args are copied, the clone gets a fresh synthetic Label so
// labels stay unique within the owning pipeline, and SendToLabel is
// cleared so label linking assigns it.
func (c *PipelineCommand) Clone() *PipelineCommand {
	clone := *c
	clone.Args = make(map[string]string, len(c.Args))
	for k, v := range c.Args {
		clone.Args[k] = v
	}
	clone.Label = uuid.New()
	clone.SendToLabel = nil
	return &clone
}
