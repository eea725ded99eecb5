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

	"github.com/pkg/errors"
)

// ErrorKind identifies the taxonomy of engine-raised errors (spec §7).
type ErrorKind string

const (
	KindCommandMissing     ErrorKind = "CommandMissing"
	KindCommandUnavailable ErrorKind = "CommandUnavailable"
	KindUnknownLabel       ErrorKind = "UnknownLabel"
	KindUnknownVariable    ErrorKind = "UnknownVariable"
	KindReadOnlyViolation  ErrorKind = "ReadOnlyViolation"
	KindFilterFailure      ErrorKind = "FilterFailure"
)

// EngineError is the common shape for every error Execute can return. It
// carries the failing command's text/name (when known) and, for
// FilterFailure, wraps the filter's own error so errors.Cause/errors.As
// still reach the original failure.
type EngineError struct {
	Kind          ErrorKind
	CommandText   string
	QualifiedName string
	Detail        string
	cause         error
}

func (e *EngineError) Error() string {
	msg := string(e.Kind)
	if e.QualifiedName != "" {
		msg += fmt.Sprintf(" %q", e.QualifiedName)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.CommandText != "" {
		msg += fmt.Sprintf(" (command: %s)", e.CommandText)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap lets errors.Is/errors.As reach the wrapped cause, if any.
func (e *EngineError) Unwrap() error { return e.cause }

// Cause satisfies github.com/pkg/errors' causer interface.
func (e *EngineError) Cause() error { return e.cause }

func newCommandMissing(cmd *PipelineCommand) *EngineError {
	return &EngineError{
		Kind:          KindCommandMissing,
		QualifiedName: cmd.NormalizedName(),
		CommandText:   cmd.OriginalText,
	}
}

func newCommandUnavailable(cmd *PipelineCommand, reason string) *EngineError {
	return &EngineError{
		Kind:          KindCommandUnavailable,
		QualifiedName: cmd.NormalizedName(),
		CommandText:   cmd.OriginalText,
		Detail:        reason,
	}
}

func newUnknownLabel(label string) *EngineError {
	return &EngineError{Kind: KindUnknownLabel, Detail: label}
}

func newUnknownVariable(key string) *EngineError {
	return &EngineError{Kind: KindUnknownVariable, Detail: key}
}

func newReadOnlyViolation(key string) *EngineError {
	return &EngineError{Kind: KindReadOnlyViolation, Detail: key}
}

func newFilterFailure(cmd *PipelineCommand, cause error) *EngineError {
	wrapped := errors.Wrapf(cause, "filter %q failed", cmd.NormalizedName())
	return &EngineError{
		Kind:          KindFilterFailure,
		QualifiedName: cmd.NormalizedName(),
		CommandText:   cmd.OriginalText,
		cause:         wrapped,
	}
}

func newContextCancelled(cause error) *EngineError {
	return &EngineError{
		Kind:   KindFilterFailure,
		Detail: "pipeline execution cancelled",
		cause:  errors.Wrap(cause, "context done"),
	}
}
