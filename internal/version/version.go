// SPDX-License-Identifier: MIT

// Package version carries build metadata set via -ldflags.
package version

var (
	// Version is the released version, or "dev" for local builds.
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
