package fpl

import (
	"fmt"
	"net/http"

	"github.com/open-fpl/data/internal/usecase"
)

type FetchErrorKind string

const (
	FetchErrorTransport FetchErrorKind = "transport"
	FetchErrorStatus    FetchErrorKind = "status"
	FetchErrorDecode    FetchErrorKind = "decode"
)

// FetchError is returned for every failed upstream call.
type FetchError struct {
	Kind       FetchErrorKind
	Path       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fpl %s error path=%s status=%d: %v", e.Kind, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fpl %s error path=%s: %v", e.Kind, e.Path, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers match upstream failures against the usecase sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case usecase.ErrNotFound:
		return e.notFound()
	case usecase.ErrDependencyUnavailable:
		return !e.notFound()
	}
	return false
}

func (e *FetchError) notFound() bool {
	return e.Kind == FetchErrorStatus && e.StatusCode == http.StatusNotFound
}
