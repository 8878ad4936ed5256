// Package file stores opaque artifacts, such as ledger backups, on the local
// filesystem or in Amazon S3 and S3-compatible services (MinIO, Wasabi).
//
// Both backends implement Storage:
//
//	storage, err := file.New(ctx, file.Config{Driver: "s3", S3Bucket: "backups", S3Region: "eu-central-1"})
//	if err != nil {
//		return err
//	}
//	obj, err := storage.Put(ctx, "backup_full_20250101_030000.json", bytes.NewReader(data))
//
// Keys are slash-separated and relative. Keys containing ".." are rejected
// with ErrInvalidPath. LocalStorage writes through a temporary file and a
// rename, so a reader never sees a partially written artifact.
//
// # Errors
//
// S3 failures are classified into package errors (ErrFileNotFound,
// ErrBucketNotFound, ErrAccessDenied, ErrServiceUnavailable,
// ErrOperationTimeout) so callers can use errors.Is without importing the AWS
// SDK.
package file
