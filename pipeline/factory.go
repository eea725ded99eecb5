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

import "fmt"

// expandFactories walks commands with a mutable index: whenever the
// command at the current position matches a registered factory pattern,
// it is replaced in place by the factory's emissions and the index is
// NOT advanced, so the emitted commands are themselves rescanned on the
// next iteration. maxExpansions bounds the total number of replacements
// performed, turning a self-referential factory into a reported error
// instead of an infinite loop.
func expandFactories(registry *Registry, commands []*PipelineCommand, maxExpansions int) ([]*PipelineCommand, error) {
	list := make([]*PipelineCommand, len(commands))
	copy(list, commands)

	expansions := 0
	i := 0
	for i < len(list) {
		cmd := list[i]
		factory := registry.matchFactory(cmd.NormalizedName())
		if factory == nil {
			i++
			continue
		}

		expansions++
		if expansions > maxExpansions {
			return nil, &EngineError{
				Kind:        KindFilterFailure,
				CommandText: cmd.OriginalText,
				Detail: fmt.Sprintf(
					"factory expansion exceeded %d replacements (likely a self-referential factory pattern: %q)",
					maxExpansions, factory.pattern),
			}
		}

		emitted, err := factory.fn(cmd)
		if err != nil {
			return nil, newFilterFailure(cmd, err)
		}
		for _, e := range emitted {
			e.CommandFactorySource = firstNonEmpty(cmd.OriginalText, cmd.CommandFactorySource)
			if e.OriginalText == "" {
				e.OriginalText = cmd.OriginalText
			}
		}

		tail := append([]*PipelineCommand{}, list[i+1:]...)
		list = append(list[:i], append(emitted, tail...)...)
		// i is deliberately left unchanged.
	}
	return list, nil
}
