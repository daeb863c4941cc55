package errors

import "errors"

var ErrMalformedFrame = errors.New("malformed gt06 frame")
var ErrBadCrc = errors.New("bad crc in gt06 frame")
var ErrUnknownDevice = errors.New("unknown device")
var ErrInvalidConfig = errors.New("invalid configuration")
var ErrStoreClosed = errors.New("store is closed")
