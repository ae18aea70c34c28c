package lma

import "errors"

// Decode failure taxonomy. Record-level decode failures during a forward scan
// are recovered locally (the candidate offset is simply not a status
// boundary); every other error aborts the operation that raised it.
var (
	// ErrMalformedRecord indicates a record whose sign-bit pattern does not
	// match a status or data record. Corrupt byte alignment or wrong file type.
	ErrMalformedRecord = errors.New("malformed record: sign-bit pattern violated")

	// ErrInconsistentStream indicates a status record whose sensor or network
	// id differs from the file's established identity. Usually a file
	// concatenation error; all status records in one capture share one sensor.
	ErrInconsistentStream = errors.New("inconsistent stream: sensor/network id changed mid-file")

	// ErrTruncatedData indicates fewer data records were available than the
	// governing status record promised. Corrupt or partial capture.
	ErrTruncatedData = errors.New("truncated data: record span shorter than trigger count")

	// ErrIndexOutOfRange indicates a frame index outside the readable range.
	// Index 0 is the bootstrap status record and is never readable.
	ErrIndexOutOfRange = errors.New("frame index out of range")

	// ErrUnsupportedVersion indicates a format version outside the known
	// decode table.
	ErrUnsupportedVersion = errors.New("unsupported raw data version")
)
