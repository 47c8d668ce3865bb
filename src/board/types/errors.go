package types

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidType    = errors.New("invalid post type")
	ErrInvalidDraft   = errors.New("invalid draft")
	ErrInvalidParent  = errors.New("invalid parent comment")
	ErrCommentsLocked = errors.New("comments are locked until the election closes")
	ErrClosed         = errors.New("voting is closed")
	ErrInvalidOption  = errors.New("invalid option")
)
