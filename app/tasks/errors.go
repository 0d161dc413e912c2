package tasks

import "errors"

var (
	ErrRefreshInProgress = errors.New("refresh in progress")
	ErrInvalidURL        = errors.New("invalid feed URL")
	ErrSchedulerStopped  = errors.New("scheduler stopped")
)
