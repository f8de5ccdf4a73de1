package domain

import "errors"

// ErrInvalidID is returned for ids that are not valid store keys.
var ErrInvalidID = errors.New("invalid id")
