package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamHTTP      = errors.New("upstream http error")
	ErrUpstreamTransport = errors.New("upstream transport error")
	ErrUpstreamEmpty     = errors.New("upstream returned no data")
)
