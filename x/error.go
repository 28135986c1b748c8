/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Check exits with a stack trace if err != nil.  Only for startup paths where
// there is no way to carry on.
func Check(err error) {
	if err != nil {
		glog.Fatalf("%+v", errors.WithStack(err))
	}
}

// Wrapf is errors.Wrapf that tolerates a nil error.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// Ignore drops an error on purpose, typically from best effort work whose
// failure was logged already.
func Ignore(_ error) {}
