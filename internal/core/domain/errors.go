package domain

import "errors"

// ErrIO is the generic I/O error every failed bio unwraps to.
var ErrIO = errors.New("i/o error")
