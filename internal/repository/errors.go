package repository

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrNotRecruiting      = errors.New("group purchase is not recruiting")
	ErrDeadlinePassed     = errors.New("deadline has passed")
	ErrAlreadyJoined      = errors.New("already joined")
	ErrNotParticipant     = errors.New("no active participation")
	ErrHasParticipants    = errors.New("group purchase has participants")
	ErrTargetBelowCurrent = errors.New("target below current participants")
)
