package file

import "errors"

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrFileNotFound  = errors.New("file not found")
	ErrIsDirectory   = errors.New("path is a directory")

	ErrFailedToReadFile        = errors.New("failed to read file")
	ErrFailedToWriteFile       = errors.New("failed to write file")
	ErrFailedToDeleteFile      = errors.New("failed to delete file")
	ErrFailedToCreateDirectory = errors.New("failed to create directory")
	ErrFailedToReadDirectory   = errors.New("failed to read directory")
	ErrFailedToStatPath        = errors.New("failed to stat path")
	ErrFailedToGetAbsolutePath = errors.New("failed to get absolute path")

	// S3 error classification
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrRequestTimeout     = errors.New("request timed out")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	ErrInvalidObjectState = errors.New("invalid object state")

	ErrOperationTimeout   = errors.New("operation timed out")
	ErrOperationCanceled  = errors.New("operation canceled")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
)
