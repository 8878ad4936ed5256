package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subledger/pkg/file"
	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
)

// Document is the JSON layout of a backup artifact. Sections not covered
// by the backup kind are omitted.
type Document struct {
	Kind         ledger.BackupKind    `json:"type"`
	CreatedAt    time.Time            `json:"created_at"`
	Users        []ledger.User        `json:"users,omitempty"`
	Services     []ledger.Service     `json:"services,omitempty"`
	Transactions []ledger.Transaction `json:"transactions,omitempty"`
}

// Exporter writes ledger snapshots to artifact storage and records a
// Backup row for every attempt, including failed ones.
type Exporter struct {
	store   ledger.Store
	storage file.Storage
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the exporter logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an exporter. Panics if store or storage is nil.
func New(store ledger.Store, storage file.Storage, opts ...Option) *Exporter {
	if store == nil {
		panic("backup: ledger store is required")
	}
	if storage == nil {
		panic("backup: storage is required")
	}
	e := &Exporter{store: store, storage: storage, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("backup"))
	return e
}

// Filename returns the artifact name for a backup of kind taken at t.
func Filename(kind ledger.BackupKind, t time.Time) string {
	return fmt.Sprintf("backup_%s_%s.json", kind, t.UTC().Format("20060102_150405"))
}

func validKind(kind ledger.BackupKind) bool {
	switch kind {
	case ledger.BackupUsers, ledger.BackupServices, ledger.BackupTransactions, ledger.BackupFull:
		return true
	}
	return false
}

// Create exports a snapshot of kind. The snapshot is read in one unit of
// work so the sections are mutually consistent.
func (e *Exporter) Create(ctx context.Context, kind ledger.BackupKind) (*ledger.Backup, error) {
	if !validKind(kind) {
		return nil, ErrInvalidKind
	}

	now := e.now()
	row := &ledger.Backup{
		Filename:  Filename(kind, now),
		Kind:      kind,
		CreatedAt: now,
	}

	size, err := e.export(ctx, kind, row.Filename, now)
	if err != nil {
		row.Status = ledger.BackupFailed
		row.Note = err.Error()
		e.logger.ErrorContext(ctx, "backup failed", slog.String("kind", string(kind)), logger.Error(err))
		if recErr := e.record(ctx, row); recErr != nil {
			return nil, errors.Join(ErrExportFailed, err, recErr)
		}
		return row, errors.Join(ErrExportFailed, err)
	}

	row.Status = ledger.BackupCompleted
	row.Size = size
	if err := e.record(ctx, row); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "backup created",
		slog.String("kind", string(kind)),
		slog.String("filename", row.Filename),
		slog.Int64("size", size))
	return row, nil
}

func (e *Exporter) export(ctx context.Context, kind ledger.BackupKind, name string, now time.Time) (int64, error) {
	doc := Document{Kind: kind, CreatedAt: now.UTC()}
	full := kind == ledger.BackupFull

	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		if full || kind == ledger.BackupUsers {
			if doc.Users, err = tx.ListUsers(ctx); err != nil {
				return err
			}
		}
		if full || kind == ledger.BackupServices {
			if doc.Services, err = tx.ListServices(ctx, false); err != nil {
				return err
			}
		}
		if full || kind == ledger.BackupTransactions {
			if doc.Transactions, err = tx.ListTransactions(ctx, ledger.TransactionFilter{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		enc.SetIndent("", "  ")
		pw.CloseWithError(enc.Encode(doc))
	}()

	obj, err := e.storage.Put(ctx, name, pr)
	_ = pr.Close()
	if err != nil {
		return 0, err
	}
	return obj.Size, nil
}

func (e *Exporter) record(ctx context.Context, row *ledger.Backup) error {
	ctx = context.WithoutCancel(ctx)
	return e.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.CreateBackup(ctx, row)
	})
}

// List returns all backup rows, newest first.
func (e *Exporter) List(ctx context.Context) ([]ledger.Backup, error) {
	var out []ledger.Backup
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListBackups(ctx)
		return err
	})
	return out, err
}

// Open returns the artifact of a completed backup.
func (e *Exporter) Open(ctx context.Context, id uuid.UUID) (*ledger.Backup, io.ReadCloser, error) {
	rows, err := e.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range rows {
		if b.ID != id {
			continue
		}
		if b.Status != ledger.BackupCompleted {
			return nil, nil, ledger.ErrInvalidState
		}
		rc, err := e.storage.Open(ctx, b.Filename)
		if err != nil {
			return nil, nil, err
		}
		return &b, rc, nil
	}
	return nil, nil, ledger.ErrBackupNotFound
}

// Prune deletes backups created before cutoff, never touching the keep most
// recent completed ones. Failed rows never count toward keep. The artifact
// is removed before its row; an already missing artifact does not block
// row removal. It returns the number of rows removed.
func (e *Exporter) Prune(ctx context.Context, cutoff time.Time, keep int) (int, error) {
	rows, err := e.List(ctx)
	if err != nil {
		return 0, err
	}

	var (
		kept    int
		removed int
		errs    []error
	)
	for _, b := range rows {
		if b.Status == ledger.BackupCompleted && kept < keep {
			kept++
			continue
		}
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if b.Status == ledger.BackupCompleted {
			if err := e.storage.Delete(ctx, b.Filename); err != nil && !errors.Is(err, file.ErrFileNotFound) {
				e.logger.WarnContext(ctx, "failed to delete backup artifact",
					slog.String("filename", b.Filename), logger.Error(err))
				errs = append(errs, err)
				continue
			}
		}
		if err := e.store.Tx(ctx, func(tx ledger.Tx) error {
			return tx.DeleteBackup(ctx, b.ID)
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
