// Copyright 2024 The Authors
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

// Package cverr defines the error taxonomy shared by every layer of the
// daemon. Classified failures are, or wrap, a *cverr.Error so that a
// caller can map them to a single errno without re-deriving the failure
// kind from string matching. The parsers in pkg/cgparse and pkg/procview
// return plain errors.
package cverr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies a failure the way the daemon reasons about it, not the
// way the kernel reports it. Multiple errnos can map to the same Kind, and
// pkg/dispatch alone is responsible for going the other direction.
type Kind int

const (
	// NotSupported means a kernel feature the caller asked for isn't
	// present. The caller should degrade, not fail the whole operation.
	NotSupported Kind = iota
	// NotFound means a cgroup path vanished between resolution and use.
	// Callers treat this as "reader's cgroup is root", per spec.
	NotFound
	// Permission is an EACCES/EPERM from the kernel, propagated verbatim.
	Permission
	// Invalid means a controller file had unparseable content. Callers
	// log and treat the value as unlimited/inherit.
	Invalid
	// Busy means a BPF attach (or similar exclusive resource) conflict.
	Busy
	// Transient means EINTR/EAGAIN; bounded-retry by the caller.
	Transient
	// Fatal means an unrecoverable per-operation failure (OOM, broken
	// invariant). The operation fails with EIO; the daemon keeps running.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case NotSupported:
		return "not supported"
	case NotFound:
		return "not found"
	case Permission:
		return "permission denied"
	case Invalid:
		return "invalid"
	case Busy:
		return "busy"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every package in this module returns
// for classified failure conditions.
type Error struct {
	Kind Kind
	Op   string // operation being attempted, e.g. "hierarchy.Resolve"
	Path string // the file or cgroup path involved, if any
	Err  error  // underlying error, usually a syscall.Errno; may be nil
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Kind, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a *Error with no wrapped cause.
func New(kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap builds a *Error around an existing error.
func Wrap(kind Kind, op, path string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind of err, defaulting to Fatal if err doesn't
// wrap a *Error — an un-classified error is treated as the most
// conservative outcome.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// FromErrno maps a raw unix.Errno to the Kind a caller not already
// holding a classified *Error should use. Callers that can distinguish
// ENOENT-as-not-found from ENOENT-as-invalid-argument should classify
// directly instead of going through this generic mapping.
func FromErrno(errno unix.Errno) Kind {
	switch errno {
	case unix.ENOENT, unix.ENODEV:
		return NotFound
	case unix.EACCES, unix.EPERM:
		return Permission
	case unix.EINTR, unix.EAGAIN:
		return Transient
	case unix.EBUSY:
		return Busy
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return NotSupported
	case unix.EINVAL:
		return Invalid
	default:
		return Fatal
	}
}
