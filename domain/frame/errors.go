package frame

import "errors"

var (
	ErrTooShort         = errors.New("frame: too short for header")
	ErrBadMagic         = errors.New("frame: invalid magic")
	ErrBadVersion       = errors.New("frame: unsupported version")
	ErrBadKind          = errors.New("frame: invalid kind")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrPayloadTruncated = errors.New("frame: payload truncated")
)
