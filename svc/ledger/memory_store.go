package ledger

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. Units of work are serialized and
// operate on a copy of the state that replaces the live state only when fn
// succeeds, which gives the same all-or-nothing behavior as the Postgres
// store. Intended for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time

	hookMu    sync.Mutex
	commitErr error
	pingErr   error
}

type memState struct {
	users        map[int64]User
	services     map[uuid.UUID]Service
	userServices map[uuid.UUID]UserService
	transactions map[uuid.UUID]Transaction
	discounts    map[string]DiscountCode
	systemLogs   []SystemLog
	errorLogs    []ErrorLog
	backups      map[uuid.UUID]Backup
	debts        map[uuid.UUID]ReconciliationDebt
}

func newMemState() *memState {
	return &memState{
		users:        make(map[int64]User),
		services:     make(map[uuid.UUID]Service),
		userServices: make(map[uuid.UUID]UserService),
		transactions: make(map[uuid.UUID]Transaction),
		discounts:    make(map[string]DiscountCode),
		backups:      make(map[uuid.UUID]Backup),
		debts:        make(map[uuid.UUID]ReconciliationDebt),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		users:        maps.Clone(s.users),
		services:     maps.Clone(s.services),
		userServices: maps.Clone(s.userServices),
		transactions: maps.Clone(s.transactions),
		discounts:    maps.Clone(s.discounts),
		systemLogs:   slices.Clone(s.systemLogs),
		errorLogs:    slices.Clone(s.errorLogs),
		backups:      maps.Clone(s.backups),
		debts:        maps.Clone(s.debts),
	}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now for default timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{state: newMemState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNextCommit makes the next successful unit of work discard its changes
// and return err, simulating a lost connection at commit time.
func (s *MemoryStore) FailNextCommit(err error) {
	s.hookMu.Lock()
	s.commitErr = err
	s.hookMu.Unlock()
}

// SetPingError makes Ping return err until cleared with nil.
func (s *MemoryStore) SetPingError(err error) {
	s.hookMu.Lock()
	s.pingErr = err
	s.hookMu.Unlock()
}

func (s *MemoryStore) Ping(context.Context) error {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return s.pingErr
}

// Tx runs fn against a private copy of the state and publishes the copy
// when fn returns nil. Units of work must not be nested.
func (s *MemoryStore) Tx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: work, now: s.now}); err != nil {
		return err
	}

	s.hookMu.Lock()
	commitErr := s.commitErr
	s.commitErr = nil
	s.hookMu.Unlock()
	if commitErr != nil {
		return errors.Join(ErrStoreUnavailable, commitErr)
	}

	s.state = work
	return nil
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) stamp(ts *time.Time) {
	if ts.IsZero() {
		*ts = t.now()
	}
}

func (t *memTx) GetUser(_ context.Context, chatID int64) (*User, error) {
	u, ok := t.st.users[chatID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (t *memTx) LockUser(ctx context.Context, chatID int64) (*User, error) {
	return t.GetUser(ctx, chatID)
}

func (t *memTx) CreateUser(_ context.Context, u *User) error {
	if _, ok := t.st.users[u.ChatID]; ok {
		return ErrUserExists
	}
	t.stamp(&u.CreatedAt)
	t.st.users[u.ChatID] = *u
	return nil
}

func (t *memTx) SetUserBalance(_ context.Context, chatID int64, balance decimal.Decimal) error {
	u, ok := t.st.users[chatID]
	if !ok {
		return ErrUserNotFound
	}
	u.Balance = balance
	t.st.users[chatID] = u
	return nil
}

func (t *memTx) ListUsers(context.Context) ([]User, error) {
	users := slices.Collect(maps.Values(t.st.users))
	slices.SortFunc(users, func(a, b User) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ChatID, b.ChatID))
	})
	return users, nil
}

func (t *memTx) ListAdmins(ctx context.Context) ([]User, error) {
	users, _ := t.ListUsers(ctx)
	return slices.DeleteFunc(users, func(u User) bool { return !u.IsAdmin }), nil
}

func (t *memTx) GetService(_ context.Context, id uuid.UUID) (*Service, error) {
	s, ok := t.st.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (t *memTx) ListServices(_ context.Context, activeOnly bool) ([]Service, error) {
	out := make([]Service, 0, len(t.st.services))
	for _, s := range t.st.services {
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Service) int {
		return cmp.Or(a.Price.Cmp(b.Price), strings.Compare(a.Name, b.Name))
	})
	return out, nil
}

func (t *memTx) CreateService(_ context.Context, s *Service) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	t.stamp(&s.CreatedAt)
	s.UpdatedAt = s.CreatedAt
	t.st.services[s.ID] = *s
	return nil
}

func (t *memTx) UpdateService(_ context.Context, s *Service) error {
	cur, ok := t.st.services[s.ID]
	if !ok {
		return ErrServiceNotFound
	}
	s.CreatedAt = cur.CreatedAt
	s.UpdatedAt = t.now()
	t.st.services[s.ID] = *s
	return nil
}

func (t *memTx) GetUserService(_ context.Context, id uuid.UUID) (*UserService, error) {
	us, ok := t.st.userServices[id]
	if !ok {
		return nil, ErrUserServiceNotFound
	}
	return &us, nil
}

func (t *memTx) CreateUserService(_ context.Context, us *UserService) error {
	if us.ID == uuid.Nil {
		us.ID = uuid.New()
	}
	t.stamp(&us.CreatedAt)
	us.UpdatedAt = us.CreatedAt
	t.st.userServices[us.ID] = *us
	return nil
}

func (t *memTx) UpdateUserService(_ context.Context, us *UserService) error {
	if _, ok := t.st.userServices[us.ID]; !ok {
		return ErrUserServiceNotFound
	}
	us.UpdatedAt = t.now()
	t.st.userServices[us.ID] = *us
	return nil
}

func (t *memTx) DeleteUserService(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.userServices[id]; !ok {
		return ErrUserServiceNotFound
	}
	delete(t.st.userServices, id)
	return nil
}

func (t *memTx) sortedUserServices(keep func(UserService) bool) []UserService {
	out := make([]UserService, 0)
	for _, us := range t.st.userServices {
		if keep(us) {
			out = append(out, us)
		}
	}
	slices.SortFunc(out, func(a, b UserService) int {
		return cmp.Or(a.ExpireAt.Compare(b.ExpireAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out
}

func (t *memTx) ListUserServices(_ context.Context, chatID int64, activeOnly bool) ([]UserService, error) {
	return t.sortedUserServices(func(us UserService) bool {
		return us.UserID == chatID && (!activeOnly || us.IsActive)
	}), nil
}

func (t *memTx) ListActiveUserServices(context.Context) ([]UserService, error) {
	return t.sortedUserServices(func(us UserService) bool { return us.IsActive }), nil
}

func (t *memTx) ListPurgeable(_ context.Context, before time.Time) ([]UserService, error) {
	return t.sortedUserServices(func(us UserService) bool { return us.Purgeable(before) }), nil
}

func (t *memTx) PurgeUserService(_ context.Context, id uuid.UUID, before time.Time) (*UserService, error) {
	us, ok := t.st.userServices[id]
	if !ok {
		return nil, ErrUserServiceNotFound
	}
	if !us.Purgeable(before) {
		return nil, ErrInvalidState
	}
	delete(t.st.userServices, id)
	return &us, nil
}

func (t *memTx) DeactivateUserServices(_ context.Context, ids []uuid.UUID, at time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		us, ok := t.st.userServices[id]
		if !ok || !us.IsActive || !us.Lapsed(at) {
			continue
		}
		us.IsActive = false
		us.DeactivatedAt = &at
		us.UpdatedAt = at
		t.st.userServices[id] = us
		n++
	}
	return n, nil
}

func (t *memTx) SetUserServiceUsage(_ context.Context, id uuid.UUID, used int64) error {
	us, ok := t.st.userServices[id]
	if !ok {
		return ErrUserServiceNotFound
	}
	us.DataUsed = used
	us.UpdatedAt = t.now()
	t.st.userServices[id] = us
	return nil
}

func (t *memTx) CreateTransaction(_ context.Context, tr *Transaction) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	t.stamp(&tr.CreatedAt)
	tr.UpdatedAt = tr.CreatedAt
	t.st.transactions[tr.ID] = *tr
	return nil
}

func (t *memTx) GetTransaction(_ context.Context, id uuid.UUID) (*Transaction, error) {
	tr, ok := t.st.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &tr, nil
}

func (t *memTx) LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *memTx) SetTransactionStatus(_ context.Context, id uuid.UUID, status TransactionStatus, at time.Time) error {
	tr, ok := t.st.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tr.Status = status
	tr.UpdatedAt = at
	t.st.transactions[id] = tr
	return nil
}

func (t *memTx) ListTransactions(_ context.Context, f TransactionFilter) ([]Transaction, error) {
	out := make([]Transaction, 0)
	for _, tr := range t.st.transactions {
		if f.match(tr) {
			out = append(out, tr)
		}
	}
	slices.SortFunc(out, func(a, b Transaction) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func (t *memTx) SumCompleted(_ context.Context, chatID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tr := range t.st.transactions {
		if tr.UserID == chatID && tr.Status == StatusCompleted {
			sum = sum.Add(tr.Amount)
		}
	}
	return sum, nil
}

func (t *memTx) GetDiscountCode(_ context.Context, code string) (*DiscountCode, error) {
	d, ok := t.st.discounts[NormalizeCode(code)]
	if !ok {
		return nil, ErrCodeNotFound
	}
	return &d, nil
}

func (t *memTx) CreateDiscountCode(_ context.Context, d *DiscountCode) error {
	d.Code = NormalizeCode(d.Code)
	if _, ok := t.st.discounts[d.Code]; ok {
		return ErrDuplicateCode
	}
	t.stamp(&d.CreatedAt)
	t.st.discounts[d.Code] = *d
	return nil
}

func (t *memTx) IncrementDiscountUsage(_ context.Context, code string) error {
	key := NormalizeCode(code)
	d, ok := t.st.discounts[key]
	if !ok {
		return ErrCodeNotFound
	}
	d.UsedCount++
	t.st.discounts[key] = d
	return nil
}

func (t *memTx) SetDiscountCodeActive(_ context.Context, code string, active bool) error {
	key := NormalizeCode(code)
	d, ok := t.st.discounts[key]
	if !ok {
		return ErrCodeNotFound
	}
	d.IsActive = active
	t.st.discounts[key] = d
	return nil
}

func (t *memTx) ListDiscountCodes(context.Context) ([]DiscountCode, error) {
	out := slices.Collect(maps.Values(t.st.discounts))
	slices.SortFunc(out, func(a, b DiscountCode) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (t *memTx) CreateSystemLog(_ context.Context, l *SystemLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	t.stamp(&l.CreatedAt)
	t.st.systemLogs = append(t.st.systemLogs, *l)
	return nil
}

func (t *memTx) CreateErrorLog(_ context.Context, l *ErrorLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	t.stamp(&l.CreatedAt)
	t.st.errorLogs = append(t.st.errorLogs, *l)
	return nil
}

func (t *memTx) PurgeLogsBefore(_ context.Context, before time.Time) (int, error) {
	n := len(t.st.systemLogs) + len(t.st.errorLogs)
	t.st.systemLogs = slices.DeleteFunc(t.st.systemLogs, func(l SystemLog) bool { return l.CreatedAt.Before(before) })
	t.st.errorLogs = slices.DeleteFunc(t.st.errorLogs, func(l ErrorLog) bool { return l.CreatedAt.Before(before) })
	return n - len(t.st.systemLogs) - len(t.st.errorLogs), nil
}

func newestFirst[T any](items []T, limit int, created func(T) time.Time) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int { return created(b).Compare(created(a)) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (t *memTx) ListSystemLogs(_ context.Context, limit int) ([]SystemLog, error) {
	return newestFirst(t.st.systemLogs, limit, func(l SystemLog) time.Time { return l.CreatedAt }), nil
}

func (t *memTx) ListErrorLogs(_ context.Context, limit int) ([]ErrorLog, error) {
	return newestFirst(t.st.errorLogs, limit, func(l ErrorLog) time.Time { return l.CreatedAt }), nil
}

func (t *memTx) CreateBackup(_ context.Context, b *Backup) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	t.stamp(&b.CreatedAt)
	t.st.backups[b.ID] = *b
	return nil
}

func (t *memTx) ListBackups(context.Context) ([]Backup, error) {
	return newestFirst(slices.Collect(maps.Values(t.st.backups)), 0, func(b Backup) time.Time { return b.CreatedAt }), nil
}

func (t *memTx) DeleteBackup(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.backups[id]; !ok {
		return ErrBackupNotFound
	}
	delete(t.st.backups, id)
	return nil
}

func (t *memTx) CreateReconciliationDebt(_ context.Context, d *ReconciliationDebt) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	t.stamp(&d.CreatedAt)
	t.st.debts[d.ID] = *d
	return nil
}

func (t *memTx) ListOpenReconciliationDebts(context.Context) ([]ReconciliationDebt, error) {
	out := make([]ReconciliationDebt, 0)
	for _, d := range t.st.debts {
		if d.ResolvedAt == nil {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b ReconciliationDebt) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (t *memTx) ResolveReconciliationDebt(_ context.Context, id uuid.UUID, at time.Time) error {
	d, ok := t.st.debts[id]
	if !ok {
		return ErrDebtNotFound
	}
	if d.ResolvedAt != nil {
		return ErrInvalidState
	}
	d.ResolvedAt = &at
	t.st.debts[id] = d
	return nil
}

func (t *memTx) SalesReport(ctx context.Context, from, to time.Time) (*SalesReport, error) {
	purchases, _ := t.ListTransactions(ctx, TransactionFilter{
		Kind:   TransactionPurchase,
		Status: StatusCompleted,
		From:   from,
		To:     to,
	})

	var newUsers int
	for _, u := range t.st.users {
		if !u.CreatedAt.Before(from) && u.CreatedAt.Before(to) {
			newUsers++
		}
	}
	var active int
	for _, us := range t.st.userServices {
		if us.IsActive {
			active++
		}
	}

	return buildSalesReport(from, to, purchases, newUsers, active, func(id uuid.UUID) string {
		return t.st.services[id].Name
	}), nil
}
