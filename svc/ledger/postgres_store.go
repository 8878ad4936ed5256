package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/pkg/pg"
)

// dbtx is the query surface shared by pgx.Tx and *pgxpool.Pool.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the production Store backed by a pgx pool. Units of work
// are database transactions; LockUser and LockTransaction use
// SELECT ... FOR UPDATE so concurrent balance mutations of one user are
// serialized by the database.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore wraps pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: postgres pool is required")
	}
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Tx(ctx context.Context, fn func(tx Tx) error) error {
	err := pg.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx, now: s.now})
	})
	if err != nil && errors.Is(err, pg.ErrTxFailed) && !errors.Is(err, ErrStoreUnavailable) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return err
}

type pgTx struct {
	q   dbtx
	now func() time.Time
}

// dbErr classifies a query error: no rows becomes notFound, anything else
// is reported as an unavailable store.
func dbErr(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && pg.IsNotFoundError(err) {
		return notFound
	}
	return errors.Join(ErrStoreUnavailable, err)
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (t *pgTx) stamp(ts *time.Time) {
	if ts.IsZero() {
		*ts = t.now()
	}
}

const userColumns = `chat_id, username, wallet_balance::text, is_admin, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u       User
		balance string
	)
	if err := row.Scan(&u.ChatID, &u.Username, &balance, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Balance = parseDecimal(balance)
	return &u, nil
}

func (t *pgTx) GetUser(ctx context.Context, chatID int64) (*User, error) {
	u, err := scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = $1`, chatID))
	return u, dbErr(err, ErrUserNotFound)
}

func (t *pgTx) LockUser(ctx context.Context, chatID int64) (*User, error) {
	u, err := scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = $1 FOR UPDATE`, chatID))
	return u, dbErr(err, ErrUserNotFound)
}

func (t *pgTx) CreateUser(ctx context.Context, u *User) error {
	t.stamp(&u.CreatedAt)
	_, err := t.q.Exec(ctx,
		`INSERT INTO users (chat_id, username, wallet_balance, is_admin, created_at) VALUES ($1, $2, $3::numeric, $4, $5)`,
		u.ChatID, u.Username, u.Balance.String(), u.IsAdmin, u.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return ErrUserExists
	}
	return dbErr(err, nil)
}

func (t *pgTx) SetUserBalance(ctx context.Context, chatID int64, balance decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, `UPDATE users SET wallet_balance = $2::numeric WHERE chat_id = $1`, chatID, balance.String())
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (t *pgTx) listUsers(ctx context.Context, where string) ([]User, error) {
	rows, err := t.q.Query(ctx, `SELECT `+userColumns+` FROM users `+where+` ORDER BY created_at, chat_id`)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, dbErr(err, nil)
		}
		out = append(out, *u)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) ListUsers(ctx context.Context) ([]User, error) {
	return t.listUsers(ctx, "")
}

func (t *pgTx) ListAdmins(ctx context.Context) ([]User, error) {
	return t.listUsers(ctx, "WHERE is_admin")
}

const serviceColumns = `id, name, price::text, duration_days, data_limit, is_active, inbound_id, created_at, updated_at`

func scanService(row pgx.Row) (*Service, error) {
	var (
		s     Service
		price string
	)
	if err := row.Scan(&s.ID, &s.Name, &price, &s.DurationDays, &s.DataLimit, &s.IsActive, &s.InboundID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Price = parseDecimal(price)
	return &s, nil
}

func (t *pgTx) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	s, err := scanService(t.q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	return s, dbErr(err, ErrServiceNotFound)
}

func (t *pgTx) ListServices(ctx context.Context, activeOnly bool) ([]Service, error) {
	rows, err := t.q.Query(ctx, `SELECT `+serviceColumns+` FROM services WHERE is_active OR NOT $1 ORDER BY price, name`, activeOnly)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, dbErr(err, nil)
		}
		out = append(out, *s)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) CreateService(ctx context.Context, s *Service) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	t.stamp(&s.CreatedAt)
	s.UpdatedAt = s.CreatedAt
	_, err := t.q.Exec(ctx,
		`INSERT INTO services (id, name, price, duration_days, data_limit, is_active, inbound_id, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Name, s.Price.String(), s.DurationDays, s.DataLimit, s.IsActive, s.InboundID, s.CreatedAt, s.UpdatedAt)
	return dbErr(err, nil)
}

func (t *pgTx) UpdateService(ctx context.Context, s *Service) error {
	s.UpdatedAt = t.now()
	err := t.q.QueryRow(ctx,
		`UPDATE services SET name = $2, price = $3::numeric, duration_days = $4, data_limit = $5, is_active = $6, inbound_id = $7, updated_at = $8
		 WHERE id = $1 RETURNING created_at`,
		s.ID, s.Name, s.Price.String(), s.DurationDays, s.DataLimit, s.IsActive, s.InboundID, s.UpdatedAt).Scan(&s.CreatedAt)
	return dbErr(err, ErrServiceNotFound)
}

const userServiceColumns = `id, user_id, service_id, handle, expire_at, data_limit, data_used, is_active, deactivated_at, created_at, updated_at`

func scanUserService(row pgx.Row) (*UserService, error) {
	var us UserService
	if err := row.Scan(&us.ID, &us.UserID, &us.ServiceID, &us.Handle, &us.ExpireAt, &us.DataLimit, &us.DataUsed,
		&us.IsActive, &us.DeactivatedAt, &us.CreatedAt, &us.UpdatedAt); err != nil {
		return nil, err
	}
	return &us, nil
}

func (t *pgTx) queryUserServices(ctx context.Context, where string, args ...any) ([]UserService, error) {
	rows, err := t.q.Query(ctx, `SELECT `+userServiceColumns+` FROM user_services WHERE `+where+` ORDER BY expire_at, id`, args...)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []UserService
	for rows.Next() {
		us, err := scanUserService(rows)
		if err != nil {
			return nil, dbErr(err, nil)
		}
		out = append(out, *us)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) GetUserService(ctx context.Context, id uuid.UUID) (*UserService, error) {
	us, err := scanUserService(t.q.QueryRow(ctx, `SELECT `+userServiceColumns+` FROM user_services WHERE id = $1 FOR UPDATE`, id))
	return us, dbErr(err, ErrUserServiceNotFound)
}

func (t *pgTx) CreateUserService(ctx context.Context, us *UserService) error {
	if us.ID == uuid.Nil {
		us.ID = uuid.New()
	}
	t.stamp(&us.CreatedAt)
	us.UpdatedAt = us.CreatedAt
	_, err := t.q.Exec(ctx,
		`INSERT INTO user_services (`+userServiceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		us.ID, us.UserID, us.ServiceID, us.Handle, us.ExpireAt, us.DataLimit, us.DataUsed, us.IsActive, us.DeactivatedAt, us.CreatedAt, us.UpdatedAt)
	return dbErr(err, nil)
}

func (t *pgTx) UpdateUserService(ctx context.Context, us *UserService) error {
	us.UpdatedAt = t.now()
	tag, err := t.q.Exec(ctx,
		`UPDATE user_services SET handle = $2, expire_at = $3, data_limit = $4, data_used = $5, is_active = $6, deactivated_at = $7, updated_at = $8
		 WHERE id = $1`,
		us.ID, us.Handle, us.ExpireAt, us.DataLimit, us.DataUsed, us.IsActive, us.DeactivatedAt, us.UpdatedAt)
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserServiceNotFound
	}
	return nil
}

func (t *pgTx) DeleteUserService(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM user_services WHERE id = $1`, id)
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserServiceNotFound
	}
	return nil
}

func (t *pgTx) ListUserServices(ctx context.Context, chatID int64, activeOnly bool) ([]UserService, error) {
	return t.queryUserServices(ctx, `user_id = $1 AND (is_active OR NOT $2)`, chatID, activeOnly)
}

func (t *pgTx) ListActiveUserServices(ctx context.Context) ([]UserService, error) {
	return t.queryUserServices(ctx, `is_active`)
}

func (t *pgTx) ListPurgeable(ctx context.Context, before time.Time) ([]UserService, error) {
	return t.queryUserServices(ctx, `NOT is_active AND COALESCE(deactivated_at, expire_at) < $1`, before)
}

func (t *pgTx) PurgeUserService(ctx context.Context, id uuid.UUID, before time.Time) (*UserService, error) {
	us, err := t.GetUserService(ctx, id)
	if err != nil {
		return nil, err
	}
	if !us.Purgeable(before) {
		return nil, ErrInvalidState
	}
	tag, err := t.q.Exec(ctx,
		`DELETE FROM user_services WHERE id = $1 AND NOT is_active AND COALESCE(deactivated_at, expire_at) < $2`,
		id, before)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInvalidState
	}
	return us, nil
}

func (t *pgTx) DeactivateUserServices(ctx context.Context, ids []uuid.UUID, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.q.Exec(ctx,
		`UPDATE user_services SET is_active = FALSE, deactivated_at = $2, updated_at = $2 WHERE id = ANY($1) AND is_active
		   AND (expire_at <= $2 OR (data_limit > 0 AND data_used >= data_limit))`,
		ids, at)
	if err != nil {
		return 0, dbErr(err, nil)
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) SetUserServiceUsage(ctx context.Context, id uuid.UUID, used int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE user_services SET data_used = $2, updated_at = $3 WHERE id = $1`, id, used, t.now())
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserServiceNotFound
	}
	return nil
}

const transactionColumns = `id, user_id, amount::text, kind, status, service_id, user_service_id, discount_code, note, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		tr     Transaction
		amount string
	)
	if err := row.Scan(&tr.ID, &tr.UserID, &amount, &tr.Kind, &tr.Status, &tr.ServiceID, &tr.UserServiceID,
		&tr.DiscountCode, &tr.Note, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
		return nil, err
	}
	tr.Amount = parseDecimal(amount)
	return &tr, nil
}

func (t *pgTx) CreateTransaction(ctx context.Context, tr *Transaction) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	t.stamp(&tr.CreatedAt)
	tr.UpdatedAt = tr.CreatedAt
	_, err := t.q.Exec(ctx,
		`INSERT INTO transactions (id, user_id, amount, kind, status, service_id, user_service_id, discount_code, note, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tr.ID, tr.UserID, tr.Amount.String(), tr.Kind, tr.Status, tr.ServiceID, tr.UserServiceID, tr.DiscountCode, tr.Note, tr.CreatedAt, tr.UpdatedAt)
	return dbErr(err, nil)
}

func (t *pgTx) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	tr, err := scanTransaction(t.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	return tr, dbErr(err, ErrTransactionNotFound)
}

func (t *pgTx) LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	tr, err := scanTransaction(t.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	return tr, dbErr(err, ErrTransactionNotFound)
}

func (t *pgTx) SetTransactionStatus(ctx context.Context, id uuid.UUID, status TransactionStatus, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (t *pgTx) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}

	rows, err := t.q.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE ($1::bigint IS NULL OR user_id = $1)
		   AND ($2 = '' OR kind = $2)
		   AND ($3 = '' OR status = $3)
		   AND ($4::timestamptz IS NULL OR created_at >= $4)
		   AND ($5::timestamptz IS NULL OR created_at < $5)
		 ORDER BY created_at, id`,
		f.UserID, string(f.Kind), string(f.Status), from, to)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, dbErr(err, nil)
		}
		out = append(out, *tr)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) SumCompleted(ctx context.Context, chatID int64) (decimal.Decimal, error) {
	var sum string
	err := t.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM transactions WHERE user_id = $1 AND status = 'completed'`, chatID).Scan(&sum)
	if err != nil {
		return decimal.Zero, dbErr(err, nil)
	}
	return parseDecimal(sum), nil
}

const discountColumns = `code, kind, magnitude::text, is_active, used_count, created_at`

func scanDiscount(row pgx.Row) (*DiscountCode, error) {
	var (
		d         DiscountCode
		magnitude string
	)
	if err := row.Scan(&d.Code, &d.Kind, &magnitude, &d.IsActive, &d.UsedCount, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Magnitude = parseDecimal(magnitude)
	return &d, nil
}

func (t *pgTx) GetDiscountCode(ctx context.Context, code string) (*DiscountCode, error) {
	d, err := scanDiscount(t.q.QueryRow(ctx, `SELECT `+discountColumns+` FROM discount_codes WHERE code = $1`, NormalizeCode(code)))
	return d, dbErr(err, ErrCodeNotFound)
}

func (t *pgTx) CreateDiscountCode(ctx context.Context, d *DiscountCode) error {
	d.Code = NormalizeCode(d.Code)
	t.stamp(&d.CreatedAt)
	_, err := t.q.Exec(ctx,
		`INSERT INTO discount_codes (code, kind, magnitude, is_active, used_count, created_at) VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		d.Code, d.Kind, d.Magnitude.String(), d.IsActive, d.UsedCount, d.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateCode
	}
	return dbErr(err, nil)
}

func (t *pgTx) IncrementDiscountUsage(ctx context.Context, code string) error {
	tag, err := t.q.Exec(ctx, `UPDATE discount_codes SET used_count = used_count + 1 WHERE code = $1`, NormalizeCode(code))
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func (t *pgTx) SetDiscountCodeActive(ctx context.Context, code string, active bool) error {
	tag, err := t.q.Exec(ctx, `UPDATE discount_codes SET is_active = $2 WHERE code = $1`, NormalizeCode(code), active)
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func (t *pgTx) ListDiscountCodes(ctx context.Context) ([]DiscountCode, error) {
	rows, err := t.q.Query(ctx, `SELECT `+discountColumns+` FROM discount_codes ORDER BY code`)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []DiscountCode
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, dbErr(err, nil)
		}
		out = append(out, *d)
	}
	return out, dbErr(rows.Err(), nil)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (t *pgTx) CreateSystemLog(ctx context.Context, l *SystemLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	t.stamp(&l.CreatedAt)
	_, err := t.q.Exec(ctx,
		`INSERT INTO system_logs (id, level, module, message, details, created_at) VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		l.ID, l.Level, l.Module, l.Message, nullableJSON(l.Details), l.CreatedAt)
	return dbErr(err, nil)
}

func (t *pgTx) CreateErrorLog(ctx context.Context, l *ErrorLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	t.stamp(&l.CreatedAt)
	_, err := t.q.Exec(ctx,
		`INSERT INTO error_logs (id, error_type, error_message, details, user_id, created_at) VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		l.ID, l.ErrorType, l.Message, nullableJSON(l.Details), l.UserID, l.CreatedAt)
	return dbErr(err, nil)
}

func (t *pgTx) PurgeLogsBefore(ctx context.Context, before time.Time) (int, error) {
	sys, err := t.q.Exec(ctx, `DELETE FROM system_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, dbErr(err, nil)
	}
	errs, err := t.q.Exec(ctx, `DELETE FROM error_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, dbErr(err, nil)
	}
	return int(sys.RowsAffected() + errs.RowsAffected()), nil
}

func (t *pgTx) ListSystemLogs(ctx context.Context, limit int) ([]SystemLog, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, level, module, message, COALESCE(details::text, ''), created_at FROM system_logs
		 ORDER BY created_at DESC LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []SystemLog
	for rows.Next() {
		var (
			l       SystemLog
			details string
		)
		if err := rows.Scan(&l.ID, &l.Level, &l.Module, &l.Message, &details, &l.CreatedAt); err != nil {
			return nil, dbErr(err, nil)
		}
		if details != "" {
			l.Details = json.RawMessage(details)
		}
		out = append(out, l)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) ListErrorLogs(ctx context.Context, limit int) ([]ErrorLog, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, error_type, error_message, COALESCE(details::text, ''), user_id, created_at FROM error_logs
		 ORDER BY created_at DESC LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []ErrorLog
	for rows.Next() {
		var (
			l       ErrorLog
			details string
		)
		if err := rows.Scan(&l.ID, &l.ErrorType, &l.Message, &details, &l.UserID, &l.CreatedAt); err != nil {
			return nil, dbErr(err, nil)
		}
		if details != "" {
			l.Details = json.RawMessage(details)
		}
		out = append(out, l)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) CreateBackup(ctx context.Context, b *Backup) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	t.stamp(&b.CreatedAt)
	_, err := t.q.Exec(ctx,
		`INSERT INTO backups (id, filename, size, kind, status, note, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.Filename, b.Size, b.Kind, b.Status, b.Note, b.CreatedAt)
	return dbErr(err, nil)
}

func (t *pgTx) ListBackups(ctx context.Context) ([]Backup, error) {
	rows, err := t.q.Query(ctx, `SELECT id, filename, size, kind, status, note, created_at FROM backups ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.Filename, &b.Size, &b.Kind, &b.Status, &b.Note, &b.CreatedAt); err != nil {
			return nil, dbErr(err, nil)
		}
		out = append(out, b)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) DeleteBackup(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM backups WHERE id = $1`, id)
	if err != nil {
		return dbErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrBackupNotFound
	}
	return nil
}

func (t *pgTx) CreateReconciliationDebt(ctx context.Context, d *ReconciliationDebt) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	t.stamp(&d.CreatedAt)
	_, err := t.q.Exec(ctx,
		`INSERT INTO reconciliation_debts (id, user_id, handle, operation, reason, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.UserID, d.Handle, d.Operation, d.Reason, d.CreatedAt)
	return dbErr(err, nil)
}

func (t *pgTx) ListOpenReconciliationDebts(ctx context.Context) ([]ReconciliationDebt, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, user_id, handle, operation, reason, created_at, resolved_at FROM reconciliation_debts
		 WHERE resolved_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, dbErr(err, nil)
	}
	defer rows.Close()

	var out []ReconciliationDebt
	for rows.Next() {
		var d ReconciliationDebt
		if err := rows.Scan(&d.ID, &d.UserID, &d.Handle, &d.Operation, &d.Reason, &d.CreatedAt, &d.ResolvedAt); err != nil {
			return nil, dbErr(err, nil)
		}
		out = append(out, d)
	}
	return out, dbErr(rows.Err(), nil)
}

func (t *pgTx) ResolveReconciliationDebt(ctx context.Context, id uuid.UUID, at time.Time) error {
	var resolved *time.Time
	err := t.q.QueryRow(ctx, `SELECT resolved_at FROM reconciliation_debts WHERE id = $1 FOR UPDATE`, id).Scan(&resolved)
	if err != nil {
		return dbErr(err, ErrDebtNotFound)
	}
	if resolved != nil {
		return ErrInvalidState
	}
	_, err = t.q.Exec(ctx, `UPDATE reconciliation_debts SET resolved_at = $2 WHERE id = $1`, id, at)
	return dbErr(err, nil)
}

func (t *pgTx) SalesReport(ctx context.Context, from, to time.Time) (*SalesReport, error) {
	purchases, err := t.ListTransactions(ctx, TransactionFilter{
		Kind:   TransactionPurchase,
		Status: StatusCompleted,
		From:   from,
		To:     to,
	})
	if err != nil {
		return nil, err
	}

	var newUsers, active int
	if err := t.q.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM users WHERE created_at >= $1 AND created_at < $2),
		        (SELECT count(*) FROM user_services WHERE is_active)`, from, to).Scan(&newUsers, &active); err != nil {
		return nil, dbErr(err, nil)
	}

	services, err := t.ListServices(ctx, false)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(services))
	for _, s := range services {
		names[s.ID] = s.Name
	}

	return buildSalesReport(from, to, purchases, newUsers, active, func(id uuid.UUID) string { return names[id] }), nil
}
