// Copyright 2025 Tom Barlow
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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/mysqlctl/internal/config"
	"github.com/tombee/mysqlctl/internal/lifecycle"
	"github.com/tombee/mysqlctl/internal/mysql"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitFailure        = 1
	ExitUsage          = 2
	ExitAlreadyRunning = 3
	ExitStartupFailed  = 4
	ExitNotRunning     = 10
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError creates an error for invalid arguments or configuration.
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// NewNotRunningError creates an error for an instance that is not running.
// An empty message prints nothing.
func NewNotRunningError(msg string) *ExitError {
	return &ExitError{Code: ExitNotRunning, Message: msg}
}

// Classify wraps err in an ExitError with the code matching its type.
// msg prefixes the message.
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	code := ExitFailure
	var (
		running *mysql.InstanceAlreadyRunningError
		startup *lifecycle.StartupFailedError
		dist    *mysql.DistributionError
		cfgErr  *config.ConfigError
	)
	switch {
	case errors.As(err, &running):
		code = ExitAlreadyRunning
	case errors.As(err, &startup):
		code = ExitStartupFailed
	case errors.As(err, &dist), errors.As(err, &cfgErr):
		code = ExitUsage
	}
	return &ExitError{Code: code, Message: msg, Cause: err}
}

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(printExitError(os.Stderr, err))
}

func printExitError(w io.Writer, err error) int {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, RenderError("Error: "+msg))
	}
	return ExitCode(err)
}
