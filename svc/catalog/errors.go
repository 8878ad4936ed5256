package catalog

import "errors"

var (
	ErrInvalidSeed    = errors.New("catalog: invalid seed document")
	ErrSeedFileAccess = errors.New("catalog: failed to read seed file")
)
