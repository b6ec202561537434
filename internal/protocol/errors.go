package protocol

import "errors"

var (
	ErrInvalidLength    = errors.New("protocol: invalid dump length")
	ErrInvalidHexLength = errors.New("protocol: invalid hex dump length")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrUnknownField     = errors.New("protocol: unknown config field")
	ErrValueOutOfRange  = errors.New("protocol: field value out of range")
)
