package ports

import (
	"errors"
	"fmt"
)

// Classification of a routing-service failure.
type RouteErrorKind int

const (
	RouteUnknown RouteErrorKind = iota
	RouteNotFound
	RouteZeroResults
	RouteRequestDenied
	RouteQuotaExceeded
)

func (k RouteErrorKind) String() string {
	switch k {
	case RouteNotFound:
		return "notFound"
	case RouteZeroResults:
		return "zeroResults"
	case RouteRequestDenied:
		return "requestDenied"
	case RouteQuotaExceeded:
		return "quotaExceeded"
	default:
		return "unknown"
	}
}

// RouteError is the typed failure of a routing or geocoding request.
type RouteError struct {
	Kind RouteErrorKind
	Err  error
}

func (e *RouteError) Error() string {
	if e.Err == nil {
		return e.Message()
	}
	return fmt.Sprintf("%s: %v", e.Message(), e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure.
func (e *RouteError) Message() string {
	switch e.Kind {
	case RouteNotFound:
		return "One or more locations could not be found"
	case RouteZeroResults:
		return "No route could be found between the origin and destination"
	case RouteRequestDenied:
		return "Directions request denied. Please check API key configuration"
	case RouteQuotaExceeded:
		return "Direction service quota exceeded. Please try again later"
	default:
		return "Error calculating directions"
	}
}

// Transient reports whether retrying the same request may succeed.
// Only quota and unclassified failures qualify; the rest are terminal
// until the destination changes.
func (e *RouteError) Transient() bool {
	return e.Kind == RouteQuotaExceeded || e.Kind == RouteUnknown
}

// ClassifyRouteError returns err as a *RouteError, wrapping anything
// unclassified as RouteUnknown.
func ClassifyRouteError(err error) *RouteError {
	if err == nil {
		return nil
	}
	var re *RouteError
	if errors.As(err, &re) {
		return re
	}
	return &RouteError{Kind: RouteUnknown, Err: err}
}
