// Package errs defines the sentinel errors shared across the cpk packages.
//
// Each value corresponds to one failure class of the CPK/@UTF/CRILAYLA
// formats. Call sites attach context with fmt.Errorf("%w: ...", errs.ErrXxx)
// so callers can discriminate with errors.Is while still seeing the details.
package errs

import "errors"

var (
	// ErrInvalidSignature indicates the top-level "CPK " signature is missing.
	ErrInvalidSignature = errors.New("invalid CPK signature")

	// ErrInvalidUTFSignature indicates a table blob does not start with "@UTF",
	// even after descrambling.
	ErrInvalidUTFSignature = errors.New("invalid UTF signature")

	// ErrFileNotFound indicates an extraction target matched no file entry.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidFormat indicates a violated structural constraint in the CPK or
	// UTF layout: out-of-range offsets, wrong sub-table signatures, negative or
	// oversized size declarations.
	ErrInvalidFormat = errors.New("invalid archive format")

	// ErrCompression indicates an invalid CRILAYLA header, bit-stream EOF, or an
	// out-of-range back-reference.
	ErrCompression = errors.New("compression error")

	// ErrParse indicates an unknown UTF storage mode or column type.
	ErrParse = errors.New("parse error")

	// ErrUnsupported indicates a documented feature that is not implemented.
	ErrUnsupported = errors.New("unsupported feature")
)
