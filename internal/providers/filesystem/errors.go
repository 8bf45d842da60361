package filesystem

import (
	"errors"
	"io/fs"
	"strings"
	"syscall"
)

// Error kinds. Every error returned by this package matches exactly one of
// these through errors.Is, and a wrapped cause may match a second one (an
// unpack traversal is both ErrUnpack and ErrInvalidPath).
var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrTooLarge      = errors.New("too large")
	ErrIO            = errors.New("i/o error")
	ErrPack          = errors.New("pack failed")
	ErrUnpack        = errors.New("unpack failed")
	ErrInternal      = errors.New("internal error")
)

// kindPrecedence orders kinds from most to least specific for KindOf.
var kindPrecedence = []error{
	ErrUnpack,
	ErrNotFound,
	ErrInvalidPath,
	ErrAlreadyExists,
	ErrTooLarge,
	ErrPack,
	ErrIO,
	ErrInternal,
}

// Error records a failed operation, the user-facing path it was about, its
// kind and the underlying cause.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, path string, kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// wrapError classifies a raw error. Errors already produced by this package
// pass through unchanged.
func wrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return newError(op, path, ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return newError(op, path, ErrAlreadyExists, err)
	default:
		return newError(op, path, ErrIO, err)
	}
}

// KindOf reports the most specific kind err matches, or ErrInternal for
// errors that did not come from this package.
func KindOf(err error) error {
	for _, kind := range kindPrecedence {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

var kindCodes = map[error]string{
	ErrInvalidPath:   "invalid_path",
	ErrNotFound:      "not_found",
	ErrAlreadyExists: "already_exists",
	ErrTooLarge:      "too_large",
	ErrIO:            "io_error",
	ErrPack:          "pack_error",
	ErrUnpack:        "unpack_error",
	ErrInternal:      "internal_error",
}

// Code returns a stable machine-readable name for err's kind. A full disk is
// reported separately from other I/O failures.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	if IsDiskFull(err) {
		return "disk_full"
	}
	return kindCodes[KindOf(err)]
}

// IsDiskFull reports whether err was caused by the device running out of space
func IsDiskFull(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
