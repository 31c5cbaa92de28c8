package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrMetadataUnavailable = errors.New("league metadata unavailable")
	ErrNoCurrentGameweek   = errors.New("no current gameweek")
)
