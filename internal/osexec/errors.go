package osexec

import "errors"

// Custom errors.
var (
	ErrInvalidUID = errors.New("invalid UID")
	ErrInvalidGID = errors.New("invalid GID")
)
