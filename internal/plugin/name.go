// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

// Package plugin hosts dynamically loaded bot plugins: it resolves artifacts,
// builds plugin containers and manages their lifecycle.
package plugin

import "regexp"

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ValidateName checks that name is usable as a plugin identity. Names end up
// in file paths, so anything outside the pattern is rejected.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName(name, "name is required")
	}
	if len(name) > maxNameLength {
		return ErrInvalidName(name, "name too long")
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName(name, "must match "+namePattern.String())
	}
	return nil
}
