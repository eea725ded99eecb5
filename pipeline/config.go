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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

const invalidEnvChars = "\n\r\t "

var (
	invalidEnvPrefix = []byte("%ENV[")

	// ErrMissingCloseDelim is returned when a %ENV[ reference is never closed.
	ErrMissingCloseDelim = errors.New("missing closing delimiter")

	// ErrInvalidEnvChars is returned when an %ENV[] name contains whitespace.
	ErrInvalidEnvChars = errors.New("invalid characters in environment variable name")
)

// GlobalConfigEntry is one [name] section of a global config file.
type GlobalConfigEntry struct {
	Value    string `toml:"value"`
	ReadOnly bool   `toml:"read_only"`
}

// GlobalConfigFile is the decoded shape of an entire global config file:
// one section per global variable to seed.
type GlobalConfigFile map[string]GlobalConfigEntry

// LoadGlobalConfig reads a TOML file of [name] sections (each with a
// `value` and optional `read_only`) and seeds the registry's
// process-global variable store, substituting %ENV[NAME] and ${NAME}
// references against the process environment first.
func (r *Registry) LoadGlobalConfig(path string) error {
	contents, err := ReplaceEnvsFile(path)
	if err != nil {
		return err
	}

	var file GlobalConfigFile
	if _, err := toml.Decode(contents, &file); err != nil {
		return fmt.Errorf("decoding global config %s: %w", path, err)
	}

	for name, entry := range file {
		r.Globals.Set(name, entry.Value, entry.ReadOnly)
	}
	return nil
}

// ReplaceEnvsFile reads path and applies EnvSub plus ${NAME} expansion.
func ReplaceEnvsFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	r, err := EnvSub(file)
	if err != nil {
		return "", err
	}
	contents, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return expandBraceEnv(string(contents)), nil
}

// EnvSub rewrites %ENV[NAME] references found in r against the process
// environment. Adapted from heka's config-file environment substitution.
func EnvSub(r io.Reader) (io.Reader, error) {
	bufIn := bufio.NewReader(r)
	bufOut := new(bytes.Buffer)
	for {
		chunk, err := bufIn.ReadBytes('%')
		if err != nil {
			if err == io.EOF {
				bufOut.Write(chunk)
				break
			}
			return nil, err
		}
		bufOut.Write(chunk[:len(chunk)-1])

		peek, err := bufIn.Peek(4)
		if err != nil {
			if err == io.EOF {
				bufOut.WriteRune('%')
				bufOut.Write(peek)
				break
			}
			return nil, err
		}

		if string(peek) == "ENV[" {
			if _, err := bufIn.ReadBytes('['); err != nil {
				return nil, err
			}
			chunk, err = bufIn.ReadBytes(']')
			if err != nil {
				if err == io.EOF {
					return nil, ErrMissingCloseDelim
				}
				return nil, err
			}
			if strings.ContainsAny(string(chunk), invalidEnvChars) || bytes.Index(chunk, invalidEnvPrefix) != -1 {
				return nil, ErrInvalidEnvChars
			}
			varName := string(chunk[:len(chunk)-1])
			bufOut.WriteString(os.Getenv(varName))
		} else {
			bufOut.WriteRune('%')
		}
	}
	return bufOut, nil
}

var braceEnvPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandBraceEnv resolves ${NAME} references, the more common shell-style
// form, as a convenience layered on top of heka's %ENV[NAME] syntax.
func expandBraceEnv(s string) string {
	return braceEnvPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := braceEnvPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
