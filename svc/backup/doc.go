// Package backup exports ledger snapshots as JSON artifacts.
//
// An artifact is named backup_{kind}_{YYYYmmdd_HHMMSS}.json and stored
// through pkg/file, locally or in S3. Kinds are users, services,
// transactions and full. Every attempt leaves a Backup row; a failed
// attempt is recorded with status failed and the error as its note.
package backup
