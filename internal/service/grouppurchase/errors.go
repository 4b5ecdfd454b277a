package grouppurchase

import "errors"

var (
	ErrNotFound            = errors.New("group purchase not found")
	ErrPerformanceNotFound = errors.New("performance not found")
	ErrNotCreator          = errors.New("only the creator may do this")
	ErrNotRecruiting       = errors.New("group purchase is not recruiting")
	ErrDeadlinePassed      = errors.New("deadline has passed")
	ErrAlreadyJoined       = errors.New("already joined this group purchase")
	ErrNotParticipant      = errors.New("no active participation to cancel")
	ErrHasParticipants     = errors.New("group purchase still has participants")
	ErrTargetBelowCurrent  = errors.New("target cannot go below current participants")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limited")
)
