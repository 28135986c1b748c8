/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// SubCommand pairs a cobra command with the viper instance its flags, env
// variables and config file get resolved through.
type SubCommand struct {
	Cmd  *cobra.Command
	Conf *viper.Viper

	EnvPrefix string
}

// GetBytes reads a human readable size such as "256KiB" or "64MB".
func (s SubCommand) GetBytes(name string) (uint64, error) {
	raw := strings.TrimSpace(s.Conf.GetString(name))
	if raw == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "while parsing --%s", name)
	}
	return n, nil
}

// GetKeyValues reads a list of "key=value" pairs.  An entry without '=' is
// stored under defKey, so a single bare value can stand for the common case.
func (s SubCommand) GetKeyValues(name, defKey string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range s.Conf.GetStringSlice(name) {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		key, val := defKey, kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key, val = strings.TrimSpace(kv[:idx]), strings.TrimSpace(kv[idx+1:])
		}
		if key == "" || val == "" {
			return nil, errors.Errorf("invalid --%s entry %q, expected key=value", name, kv)
		}
		if _, ok := out[key]; ok {
			return nil, errors.Errorf("duplicate --%s entry for %q", name, key)
		}
		out[key] = val
	}
	return out, nil
}
