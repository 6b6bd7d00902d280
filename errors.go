package yolods

import "errors"

// Error kinds. Returned errors wrap one of these and carry the details, test with errors.Is.
var (
	ErrFormat    = errors.New("malformed label")
	ErrRange     = errors.New("value out of range")
	ErrDimension = errors.New("invalid image dimensions")
	ErrConfig    = errors.New("invalid configuration")
	ErrIO        = errors.New("i/o failure")
)
