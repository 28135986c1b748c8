/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"fmt"
)

var (
	// These variables are set using -ldflags
	apqVersion     string
	gitBranch      string
	lastCommitSHA  string
	lastCommitTime string
)

// BuildDetails returns a string containing details about the apq binary.
func BuildDetails() string {
	return fmt.Sprintf(`
APQ version      : %v
Commit SHA-1     : %v
Commit timestamp : %v
Branch           : %v

Licensed under the Apache License, Version 2.0. Copyright Hypermode Inc.

`,
		Version(), lastCommitSHA, lastCommitTime, gitBranch)
}

// Version returns the version this binary was built from.
func Version() string {
	if apqVersion == "" {
		return "dev"
	}
	return apqVersion
}
