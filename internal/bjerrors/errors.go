// Package bjerrors defines Bijou's stable, documented error-kind
// enumeration (§7 of the specification) and a typed error that carries
// one, so that every layer from the content cipher engine up to the
// mount adapter can propagate failures without losing the kind the
// host-facing contract promises to keep stable.
package bjerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error kinds the specification commits
// to keeping stable across versions. It is deliberately not a Go error
// type in its own right: wrap it in *Error so callers can still use
// errors.Is/errors.As against both the kind and the underlying cause.
type Kind uint8

const (
	NotFound Kind = iota
	AlreadyExists
	NotDirectory
	IsDirectory
	DirectoryNotEmpty
	InvalidName
	NameTooLong
	PermissionDenied
	AuthFailed
	CorruptKeystore
	CorruptConfig
	DataCorruption
	IoError
	Unsupported
	ReadOnlyFs
	NoSpace
	TooManyLinks
	LoopDetected
	CrossDeviceLink // never emitted internally; reserved per spec
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case NotDirectory:
		return "NotDirectory"
	case IsDirectory:
		return "IsDirectory"
	case DirectoryNotEmpty:
		return "DirectoryNotEmpty"
	case InvalidName:
		return "InvalidName"
	case NameTooLong:
		return "NameTooLong"
	case PermissionDenied:
		return "PermissionDenied"
	case AuthFailed:
		return "AuthFailed"
	case CorruptKeystore:
		return "CorruptKeystore"
	case CorruptConfig:
		return "CorruptConfig"
	case DataCorruption:
		return "DataCorruption"
	case IoError:
		return "IoError"
	case Unsupported:
		return "Unsupported"
	case ReadOnlyFs:
		return "ReadOnlyFs"
	case NoSpace:
		return "NoSpace"
	case TooManyLinks:
		return "TooManyLinks"
	case LoopDetected:
		return "LoopDetected"
	case CrossDeviceLink:
		return "CrossDeviceLink"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with the operation and file id it occurred on, and
// optionally an underlying cause from the KV engine or raw blob store.
type Error struct {
	Kind   Kind
	Op     string
	FileID uint64
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.FileID != 0 {
			return fmt.Sprintf("%s: file %d: %s: %v", e.Op, e.FileID, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	if e.FileID != 0 {
		return fmt.Sprintf("%s: file %d: %s", e.Op, e.FileID, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, New(kind, op)) match any *Error of the same
// Kind, whatever its Op, FileID or cause.
func (e *Error) Is(target error) bool {
	var ke *Error
	if errors.As(target, &ke) {
		return e.Kind == ke.Kind
	}
	return false
}

// New builds an *Error with no underlying cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Newf builds an *Error wrapping an underlying cause.
func Newf(kind Kind, op string, fileID uint64, err error) *Error {
	return &Error{Kind: kind, Op: op, FileID: fileID, Err: err}
}

// Of reports the Kind carried by err, if any, and whether one was
// found at all (false for errors with no attached Kind, e.g. raw I/O
// errors that were never wrapped).
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether the first *Error in err's chain carries the given
// Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
