// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fmterr provides the kinds of errors reported by the engine
// and helpers to accumulate errors while checking graphs and requests.
package fmterr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfig is the kind of errors detected before any numerical work:
	// invalid graphs, invalid sets of requested derivatives, or monomials
	// referencing nodes outside of a graph.
	ErrConfig = errors.New("configuration error")

	// ErrMisuse is the kind of errors caused by an invalid use of the API
	// at evaluation time: unset inputs, undeclared derivatives, or a tape
	// used with an incompatible plan.
	ErrMisuse = errors.New("misuse error")
)

type kindError struct {
	kind error
	err  error
}

// Configf returns a configuration error.
func Configf(format string, a ...any) error {
	return kindError{kind: ErrConfig, err: errors.Errorf(format, a...)}
}

// Misusef returns a misuse error.
func Misusef(format string, a ...any) error {
	return kindError{kind: ErrMisuse, err: errors.Errorf(format, a...)}
}

// Internal marks an error as internal, potentially adding additional information.
func Internal(err error) error {
	return fmt.Errorf("hoad internal error. This is a bug in hoad. Please report it. Error:\n%+v", err)
}

// Internalf returns a formatted internal error.
func Internalf(format string, a ...any) error {
	return Internal(errors.Errorf(format, a...))
}

// PrefixWith returns a function to prefix errors with a formatted string.
func PrefixWith(s string, o ...any) func(err error) error {
	return func(err error) error {
		return fmt.Errorf("%s%w", fmt.Sprintf(s, o...), err)
	}
}

func (err kindError) Error() string {
	return err.err.Error()
}

// Is returns true if target is the kind of the error.
func (err kindError) Is(target error) bool {
	return target == err.kind
}

// Unwrap the error.
func (err kindError) Unwrap() error {
	return err.err
}

// Format writes the error into the state of the formatter.
func (err kindError) Format(s fmt.State, verb rune) {
	format(err, s, verb)
}
