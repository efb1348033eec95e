// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrFolderNotFound is returned by a persistence store when the requested folder has no durable record.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrFolderAlreadyExists is returned when a folder creation request targets a folder that already exists
	// or that the persistence store refused to create.
	ErrFolderAlreadyExists = errors.New("folder already exists")

	// ErrCreateFolderFailure is returned when the server could not create a folder on behalf of a client.
	ErrCreateFolderFailure = errors.New("server create folder failed")

	// ErrHandlerClosed is returned when a command is sent to a folder handler that has been retired.
	ErrHandlerClosed = errors.New("folder handler is closed")

	// ErrReplyDropped is returned when a command reply was released without ever being answered.
	ErrReplyDropped = errors.New("folder command reply dropped")

	// ErrSynchronization wraps every failure reported by a Synchronizer while applying a command.
	ErrSynchronization = errors.New("folder synchronization failed")

	// ErrInvalidRevision is returned when a revision payload is malformed or its checksum does not match.
	ErrInvalidRevision = errors.New("invalid revision")

	// ErrInvalidFolderData is returned when the durable representation of a folder cannot be decoded.
	ErrInvalidFolderData = errors.New("invalid folder data")

	// ErrManagerNotStarted is returned when the folder manager is used before Start or after Stop.
	ErrManagerNotStarted = errors.New("folder manager is not started")

	// ErrStoreClosed is returned when a persistence store is used after it has been closed.
	ErrStoreClosed = errors.New("persistence store is closed")

	// ErrInvalidConfig is returned when a configuration value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// NewErrFolderNotFound formats an ErrFolderNotFound with the given folder id.
func NewErrFolderNotFound(folderID string) error {
	return fmt.Errorf("folder=(%s) %w", folderID, ErrFolderNotFound)
}

// NewErrCreateFolderFailure wraps the cause of a failed folder creation.
func NewErrCreateFolderFailure(folderID string, err error) error {
	return fmt.Errorf("folder=(%s) %w: %w", folderID, ErrCreateFolderFailure, err)
}

// NewErrHandlerClosed formats an ErrHandlerClosed with the given folder id.
func NewErrHandlerClosed(folderID string) error {
	return fmt.Errorf("folder=(%s) %w", folderID, ErrHandlerClosed)
}

// NewErrSynchronization wraps a Synchronizer failure with ErrSynchronization.
func NewErrSynchronization(err error) error {
	return errors.Join(ErrSynchronization, err)
}

// NewErrInvalidRevision formats an ErrInvalidRevision for the given revision id.
func NewErrInvalidRevision(revID int64, reason string) error {
	return fmt.Errorf("rev_id=(%d) %w: %s", revID, ErrInvalidRevision, reason)
}

// NewErrInvalidFolderData wraps a decoding failure with ErrInvalidFolderData.
func NewErrInvalidFolderData(folderID string, err error) error {
	return fmt.Errorf("folder=(%s) %w: %w", folderID, ErrInvalidFolderData, err)
}

// NewErrInvalidConfig formats an ErrInvalidConfig for the given setting.
func NewErrInvalidConfig(setting string, reason string) error {
	return fmt.Errorf("%s %w: %s", setting, ErrInvalidConfig, reason)
}

// IsRoutingFailure reports whether err was raised by the routing layer itself
// rather than by the Synchronizer.
func IsRoutingFailure(err error) bool {
	return errors.Is(err, ErrHandlerClosed) || errors.Is(err, ErrReplyDropped)
}

// PanicError defines the panic error
// wrapping the underlying error
type PanicError struct {
	err error
}

// enforce compilation error
var _ error = (*PanicError)(nil)

// NewPanicError creates an instance of PanicError
func NewPanicError(err error) *PanicError {
	return &PanicError{err}
}

// Error implements the standard error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.err)
}

func (e *PanicError) Unwrap() error {
	return e.err
}
