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

// The built-in pseudo-commands are interpreted directly by Pipeline.dispatch
// rather than looked up through the filter registry; this file only holds
// their reserved names and the isBuiltin check.

const (
	BuiltinLabel    = "core.label"
	BuiltinWriteTo  = "core.writeto"
	BuiltinReadFrom = "core.readfrom"
	BuiltinInclude  = "core.include"
)

// isBuiltin reports whether a normalized qualified name is one of the
// reserved pseudo-commands: the three the execution driver interprets
// directly, plus core.include, which is reserved for the built-in
// template factory even though it never reaches dispatch itself.
func isBuiltin(normalizedName string) bool {
	switch normalizedName {
	case BuiltinLabel, BuiltinWriteTo, BuiltinReadFrom, BuiltinInclude:
		return true
	default:
		return false
	}
}
