package backup

import "errors"

var (
	ErrInvalidKind  = errors.New("backup: unknown backup kind")
	ErrExportFailed = errors.New("backup: export failed")
)
