package api

import "errors"

var (
	ErrInvalidJSON          = errors.New("invalid JSON body")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidParam         = errors.New("invalid parameter")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrRateLimited          = errors.New("too many requests")
)
