// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package config

import (
	"github.com/samber/oops"
)

// Error codes for configuration failures.
const (
	CodeLoadFailed = "CONFIG_LOAD_FAILED"
	CodeSchema     = "CONFIG_SCHEMA_VIOLATION"
	CodeInvalid    = "CONFIG_INVALID"
)

// ErrLoadFailed creates an error for a config file that could not be read or parsed.
func ErrLoadFailed(path string, cause error) error {
	return oops.Code(CodeLoadFailed).
		In("config").
		With("path", path).
		Wrapf(cause, "load %s", path)
}

// ErrSchema creates an error for a document that does not match the schema.
func ErrSchema(path string, cause error) error {
	return oops.Code(CodeSchema).
		In("config").
		With("path", path).
		Hint("run gen-schema and point your editor at schemas/config.schema.json").
		Errorf("%s: %s", path, FormatSchemaError(cause))
}

// ErrInvalid creates an error for a semantically invalid field.
func ErrInvalid(field, reason string) error {
	return oops.Code(CodeInvalid).
		In("config").
		With("field", field).
		Errorf("%s: %s", field, reason)
}
